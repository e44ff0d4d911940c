// internal/wallet/wallet.go
package wallet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

const lamportsPerSol = 1_000_000_000

// Wallet holds the signing keypair for the agent.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// New creates a wallet from a base58-encoded private key.
func New(privateKeyBase58 string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate creates a fresh throwaway keypair for dry-run mode.
func Generate() *Wallet {
	account := solana.NewWallet()
	return &Wallet{
		PrivateKey: account.PrivateKey,
		PublicKey:  account.PublicKey(),
	}
}

// Ready reports whether the wallet carries a usable keypair.
func (w *Wallet) Ready() bool {
	return w != nil && len(w.PrivateKey) > 0
}

// Balance returns the wallet's SOL balance.
func (w *Wallet) Balance(ctx context.Context, client *rpc.Client) (float64, error) {
	out, err := client.GetBalance(ctx, w.PublicKey, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return float64(out.Value) / lamportsPerSol, nil
}

// fileConfig mirrors the wallets YAML file layout.
type fileConfig struct {
	Wallets []struct {
		Name       string `yaml:"name"`
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallets"`
}

// LoadWallets reads named wallets from a YAML file.
func LoadWallets(path string) (map[string]*Wallet, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	wallets := make(map[string]*Wallet, len(cfg.Wallets))
	for _, entry := range cfg.Wallets {
		if entry.Name == "" {
			return nil, fmt.Errorf("wallet entry without a name")
		}
		w, err := New(entry.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %q: %w", entry.Name, err)
		}
		wallets[entry.Name] = w
	}

	if len(wallets) == 0 {
		return nil, fmt.Errorf("no wallets defined in %s", cleanPath)
	}

	return wallets, nil
}
