package executor

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
)

func TestJSONLWriter_AppendDecision_WritesOneLinePerCall(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir)
	at := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, w.AppendDecision("agent-1", at, model.Decision{Action: model.ActionHold}))
	require.NoError(t, w.AppendDecision("agent-1", at, model.Decision{Action: model.ActionHold}))

	path := filepath.Join(dir, "decisions", "agent-1_2026-01-02.jsonl")
	lines := readLines(t, path)
	assert.Len(t, lines, 2)

	var rec decisionRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, model.ActionHold, rec.Action)
}

func TestJSONLWriter_AppendTrade_WritesToDateFile(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir)
	at := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

	result := OrderResult{OrderID: "o-1", FillPrice: decimal.NewFromInt(100)}
	decision := model.Decision{Action: model.ActionBuy, Quantity: decimal.NewFromInt(5)}

	require.NoError(t, w.AppendTrade("agent-1", at, result, decision))

	path := filepath.Join(dir, "trades", "2026-01-02.jsonl")
	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var rec tradeRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "o-1", rec.OrderID)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
