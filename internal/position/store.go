// internal/position/store.go
package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Document is the persisted ledger: every open position plus the configured
// exit thresholds. Serialize then deserialize must reproduce it exactly.
type Document struct {
	Positions     []Position `json:"positions"`
	StopLossPct   float64    `json:"stop_loss_pct"`
	TakeProfitPct float64    `json:"take_profit_pct"`
}

// Store persists the ledger document.
type Store interface {
	Save(doc *Document) error
	Load() (*Document, error)
}

// FileStore keeps the ledger document in a single JSON file, overwritten
// atomically on every save.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileStore creates a file-backed ledger store.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.Named("ledger_store"),
	}
}

// Save writes the document to a temp file and renames it over the target,
// so a crash mid-write never leaves a truncated ledger behind.
func (s *FileStore) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger file: %w", err)
	}

	s.logger.Debug("Ledger saved",
		zap.String("path", s.path),
		zap.Int("positions", len(doc.Positions)))

	return nil
}

// Load reads the ledger document. A missing file yields an empty document.
func (s *FileStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ledger file: %w", err)
	}

	return &doc, nil
}
