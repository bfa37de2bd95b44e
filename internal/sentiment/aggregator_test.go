package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
)

func fetcherReturning(s model.SourceSentiment) SourceFetcher {
	return func(ctx context.Context, symbol string) (model.SourceSentiment, error) {
		return s, nil
	}
}

func TestAggregate_AllSourcesAgreePositive(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews:   fetcherReturning(model.SourceSentiment{Source: model.SourceNews, Sentiment: model.SentimentPositive, Score: 0.5}),
		model.SourceReddit: fetcherReturning(model.SourceSentiment{Source: model.SourceReddit, Sentiment: model.SentimentPositive, Score: 0.6}),
		model.SourceSEC:    fetcherReturning(model.SourceSentiment{Source: model.SourceSEC, Sentiment: model.SentimentPositive, Score: 0.3}),
	}
	agg := NewAggregator(fetchers, DefaultWeights, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, model.SentimentPositive, got.OverallSentiment)
	assert.Equal(t, 1.0, got.AgreementLevel)
	assert.Len(t, got.SourcesUsed, 3)
}

func TestAggregate_OneSourceNoData_RenormalizesOverRest(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews:   fetcherReturning(model.SourceSentiment{Source: model.SourceNews, Sentiment: model.SentimentPositive, Score: 0.5}),
		model.SourceReddit: fetcherReturning(model.SourceSentiment{Source: model.SourceReddit, NoData: true}),
		model.SourceSEC:    fetcherReturning(model.SourceSentiment{Source: model.SourceSEC, Sentiment: model.SentimentPositive, Score: 0.5}),
	}
	agg := NewAggregator(fetchers, DefaultWeights, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, got.SourcesUsed, 2)
	assert.InDelta(t, 0.5, got.Score, 0.0001)
}

func TestAggregate_FetcherError_TreatedAsNoData(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews: func(ctx context.Context, symbol string) (model.SourceSentiment, error) {
			return model.SourceSentiment{}, errors.New("provider down")
		},
	}
	agg := NewAggregator(fetchers, DefaultWeights, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, model.SentimentNeutral, got.OverallSentiment)
	assert.Empty(t, got.SourcesUsed)
}

func TestAggregate_AllNoData_ReturnsNeutralZeroConfidence(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews: fetcherReturning(model.SourceSentiment{Source: model.SourceNews, NoData: true}),
	}
	agg := NewAggregator(fetchers, DefaultWeights, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, model.SentimentNeutral, got.OverallSentiment)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestAggregate_Confidence_IsWeightedAverageOfSourceConfidences(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews:   fetcherReturning(model.SourceSentiment{Source: model.SourceNews, Sentiment: model.SentimentPositive, Score: 0.5, Confidence: 0.8}),
		model.SourceReddit: fetcherReturning(model.SourceSentiment{Source: model.SourceReddit, Sentiment: model.SentimentPositive, Score: 0.5, Confidence: 0.4}),
		model.SourceSEC:    fetcherReturning(model.SourceSentiment{Source: model.SourceSEC, Sentiment: model.SentimentPositive, Score: 0.5, Confidence: 0.6}),
	}
	agg := NewAggregator(fetchers, DefaultWeights, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	// weighted average of confidences (0.8, 0.4, 0.6) over weights (0.40, 0.25, 0.25),
	// not the agreement-scaled total weight.
	wantConfidence := (0.8*0.40 + 0.4*0.25 + 0.6*0.25) / (0.40 + 0.25 + 0.25)
	assert.InDelta(t, wantConfidence, got.Confidence, 0.0001)
}

func TestAggregate_DisagreeingSources_LowerAgreementLevel(t *testing.T) {
	fetchers := map[model.SentimentSource]SourceFetcher{
		model.SourceNews:   fetcherReturning(model.SourceSentiment{Source: model.SourceNews, Sentiment: model.SentimentPositive, Score: 0.9}),
		model.SourceReddit: fetcherReturning(model.SourceSentiment{Source: model.SourceReddit, Sentiment: model.SentimentNegative, Score: -0.9}),
	}
	agg := NewAggregator(fetchers, Weights{News: 0.5, Reddit: 0.5}, time.Second)

	got, err := agg.Aggregate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Less(t, got.AgreementLevel, 1.0)
}
