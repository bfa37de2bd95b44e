package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// decisionRecord is one append-only line in a decisions/{agent}_{date}
// stream.
type decisionRecord struct {
	AgentID    string          `json:"agent_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Action     model.DecisionAction `json:"action"`
	Quantity   decimal.Decimal `json:"quantity"`
	Confidence float64         `json:"confidence"`
	Rationale  string          `json:"rationale"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
}

// tradeRecord is one append-only line in a trades/{date} stream.
type tradeRecord struct {
	AgentID    string    `json:"agent_id"`
	Timestamp  time.Time `json:"timestamp"`
	OrderID    string    `json:"order_id"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Simulated  bool      `json:"simulated"`
}

// JSONLWriter implements TradeLog by appending one JSON object per line
// to per-agent/per-day decision files and per-day trade files under
// root, matching spec §6's `decisions/{agent}_{date}` and
// `trades/{date}` stream layout.
type JSONLWriter struct {
	root string
	mu   sync.Mutex
}

// NewJSONLWriter builds a writer rooted at the given logs directory.
func NewJSONLWriter(root string) *JSONLWriter {
	return &JSONLWriter{root: root}
}

func (w *JSONLWriter) AppendDecision(agentID string, at time.Time, decision model.Decision) error {
	rec := decisionRecord{
		AgentID:    agentID,
		Timestamp:  at,
		Action:     decision.Action,
		Quantity:   decision.Quantity,
		Confidence: decision.Confidence,
		Rationale:  decision.Rationale,
		StopLoss:   decision.StopLoss,
	}
	path := filepath.Join(w.root, "decisions", fmt.Sprintf("%s_%s.jsonl", agentID, at.Format("2006-01-02")))
	return w.appendLine(path, rec)
}

func (w *JSONLWriter) AppendTrade(agentID string, at time.Time, result OrderResult, decision model.Decision) error {
	rec := tradeRecord{
		AgentID:   agentID,
		Timestamp: at,
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice,
		Quantity:  decision.Quantity,
		Simulated: result.Simulated,
	}
	path := filepath.Join(w.root, "trades", fmt.Sprintf("%s.jsonl", at.Format("2006-01-02")))
	return w.appendLine(path, rec)
}

func (w *JSONLWriter) appendLine(path string, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	line = append(line, '\n')

	_, err = f.Write(line)
	return err
}
