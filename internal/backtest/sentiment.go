package backtest

import (
	"context"
	"time"

	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/sentiment"
)

// sentimentAtFunc adapts a store's exact-timestamp lookup into the
// aggregated-sentiment shape the fusion formula expects, fusing whatever
// sources landed at that timestamp with the same weights as live
// aggregation.
type sentimentAtFunc func(ctx context.Context, symbol string, at time.Time) ([]model.SentimentRecord, error)

// StoreSentimentHistory looks up per-source sentiment recorded at a bar's
// exact timestamp and fuses it with the same weights live aggregation
// uses. A timestamp with no recorded sentiment reports found=false so the
// engine can degrade to zero confidence rather than fail the run.
type StoreSentimentHistory struct {
	lookup  sentimentAtFunc
	weights sentiment.Weights
}

// NewStoreSentimentHistory builds a history lookup over a store's
// SentimentAt method, fusing with weights (DefaultWeights when zero).
func NewStoreSentimentHistory(lookup sentimentAtFunc, weights sentiment.Weights) *StoreSentimentHistory {
	if (weights == sentiment.Weights{}) {
		weights = sentiment.DefaultWeights
	}
	return &StoreSentimentHistory{lookup: lookup, weights: weights}
}

func (h *StoreSentimentHistory) At(ctx context.Context, symbol string, at time.Time) (model.AggregatedSentiment, bool, error) {
	records, err := h.lookup(ctx, symbol, at)
	if err != nil {
		return model.AggregatedSentiment{}, false, err
	}
	if len(records) == 0 {
		return model.AggregatedSentiment{}, false, nil
	}
	return sentiment.FuseRecords(records, h.weights), true, nil
}
