// internal/journal/export.go
package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Format selects the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ExportOptions configures an export run.
type ExportOptions struct {
	Format       Format
	StartTime    time.Time
	EndTime      time.Time
	MintFilter   string
	ActionFilter string // "buy" or "sell"
	OutputDir    string
}

// Exporter writes journaled trades to disk.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a trade exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("exporter")}
}

// Export writes the matching trades and returns the output path.
func (ex *Exporter) Export(trades []Trade, options ExportOptions) (string, error) {
	filtered := filterTrades(trades, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = ex.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	ex.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterTrades(trades []Trade, options ExportOptions) []Trade {
	var filtered []Trade
	for _, trade := range trades {
		if !options.StartTime.IsZero() && trade.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && trade.Timestamp.After(options.EndTime) {
			continue
		}
		if options.MintFilter != "" && trade.Mint != options.MintFilter {
			continue
		}
		if options.ActionFilter != "" && trade.Action != options.ActionFilter {
			continue
		}
		filtered = append(filtered, trade)
	}
	return filtered
}

func generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "trades_all"
	if options.ActionFilter != "" {
		prefix = "trades_" + options.ActionFilter
	}
	if len(options.MintFilter) >= 8 {
		prefix += "_" + options.MintFilter[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func exportToCSV(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, trade := range trades {
		if err := writer.Write(trade.ToCSV()); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	return nil
}

func (ex *Exporter) exportToJSON(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	exportData := struct {
		ExportTime time.Time `json:"export_time"`
		TradeCount int       `json:"trade_count"`
		Summary    Summary   `json:"summary"`
		Trades     []Trade   `json:"trades"`
	}{
		ExportTime: time.Now(),
		TradeCount: len(trades),
		Summary:    Summarize(trades),
		Trades:     trades,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summary aggregates journaled trades.
type Summary struct {
	TotalTrades     int       `json:"total_trades"`
	BuyCount        int       `json:"buy_count"`
	SellCount       int       `json:"sell_count"`
	UniqueTokens    int       `json:"unique_tokens"`
	TotalBuyVolume  float64   `json:"total_buy_volume"`
	TotalSellVolume float64   `json:"total_sell_volume"`
	TotalPnl        float64   `json:"total_pnl"`
	WinCount        int       `json:"win_count"`
	LossCount       int       `json:"loss_count"`
	WinRate         float64   `json:"win_rate"`
	AvgPnl          float64   `json:"avg_pnl"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// Summarize computes aggregate statistics over trades, which must be
// sorted by timestamp.
func Summarize(trades []Trade) Summary {
	summary := Summary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].Timestamp
	summary.EndDate = trades[len(trades)-1].Timestamp

	tokenSet := make(map[string]bool)
	for _, trade := range trades {
		tokenSet[trade.Mint] = true

		switch trade.Action {
		case "buy":
			summary.BuyCount++
			summary.TotalBuyVolume += trade.AmountSOL
		case "sell":
			summary.SellCount++
			summary.TotalSellVolume += trade.AmountSOL
			summary.TotalPnl += trade.Pnl
			if trade.Pnl > 0 {
				summary.WinCount++
			} else if trade.Pnl < 0 {
				summary.LossCount++
			}
		}
	}

	summary.UniqueTokens = len(tokenSet)
	if summary.SellCount > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(summary.SellCount) * 100
		summary.AvgPnl = summary.TotalPnl / float64(summary.SellCount)
	}

	return summary
}
