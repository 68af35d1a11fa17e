package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/engine"
	"github.com/equityrun/equityrun/internal/persistence"
)

// Emitter writes run artifacts (fills, decisions, report) to disk for
// spreadsheet and dashboard consumption.
type Emitter struct {
	dir string
}

// NewEmitter creates an emitter rooted at dir, creating it if needed
func NewEmitter(dir string) (*Emitter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return &Emitter{dir: dir}, nil
}

// EmitFillsCSV writes the fills ledger as CSV
func (e *Emitter) EmitFillsCSV(fills []broker.Fill) error {
	path := filepath.Join(e.dir, "fills.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create fills CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Timestamp", "OrderID", "Symbol", "Side", "Qty", "Price", "Fee", "Slippage", "Note"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write fills CSV header: %w", err)
	}

	for _, f := range fills {
		record := []string{
			f.Timestamp.UTC().Format(time.RFC3339),
			f.OrderID,
			f.Symbol,
			string(f.Side),
			strconv.Itoa(f.Qty),
			fmt.Sprintf("%.4f", f.Price),
			fmt.Sprintf("%.4f", f.Fee),
			fmt.Sprintf("%.4f", f.Slippage),
			f.Note,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write fills CSV record: %w", err)
		}
	}
	return nil
}

// EmitReportJSON writes the run summary with generation metadata
func (e *Emitter) EmitReportJSON(report *engine.Report) error {
	path := filepath.Join(e.dir, "report.json")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report JSON: %w", err)
	}
	defer file.Close()

	payload := map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"report":       report,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode report JSON: %w", err)
	}
	return nil
}

// EmitDecisionsJSON writes the decision audit trail with votes,
// weights, and per-strategy explanations preserved.
func (e *Emitter) EmitDecisionsJSON(decisions []persistence.StrategyDecisionEvent) error {
	path := filepath.Join(e.dir, "decisions.json")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create decisions JSON: %w", err)
	}
	defer file.Close()

	payload := map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"count":        len(decisions),
		"decisions":    decisions,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode decisions JSON: %w", err)
	}
	return nil
}
