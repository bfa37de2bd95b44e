package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
)

type fakeScorer struct {
	compound float64
	err      error
}

func (f *fakeScorer) Score(ctx context.Context, text string) (float64, float64, float64, float64, error) {
	return f.compound, 0, 0, 0, f.err
}

func TestNewsAnalyzer_EmptyItems_ReturnsNoData(t *testing.T) {
	a := NewNewsAnalyzer(&fakeScorer{compound: 0.5}, 50)
	got := a.GetSentiment(context.Background(), nil)
	assert.True(t, got.NoData)
	assert.Equal(t, model.SourceNews, got.Source)
}

func TestNewsAnalyzer_PositiveItems_AggregatesToPositive(t *testing.T) {
	a := NewNewsAnalyzer(&fakeScorer{compound: 0.6}, 50)
	items := []TextItem{{Text: "great earnings beat"}, {Text: "record growth"}}
	got := a.GetSentiment(context.Background(), items)
	require.False(t, got.NoData)
	assert.Equal(t, model.SentimentPositive, got.Sentiment)
	assert.Equal(t, 2, got.ItemCount)
}

func TestNewsAnalyzer_ScorerErrors_ReturnsNoData(t *testing.T) {
	a := NewNewsAnalyzer(&fakeScorer{err: errors.New("boom")}, 50)
	items := []TextItem{{Text: "whatever"}}
	got := a.GetSentiment(context.Background(), items)
	assert.True(t, got.NoData)
}

func TestRedditAnalyzer_ComputesTrendingScore(t *testing.T) {
	a := NewRedditAnalyzer(&fakeScorer{compound: 0.1}, 50)
	items := []TextItem{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	got := a.GetSentiment(context.Background(), items, 4)
	require.False(t, got.NoData)
	assert.InDelta(t, 1.0, got.Diagnostic["trending_score"], 0.0001)
}

func TestScoreFiling_8K_BasePlusPositiveKeyword(t *testing.T) {
	f := Filing{Form: "8-K", Description: "company reports record growth this quarter"}
	score := ScoreFiling(f)
	// 8-K base 0.0, plus 0.2 each for "record" and "growth".
	assert.InDelta(t, 0.4, score, 0.0001)
}

func TestScoreFiling_10K_NegativeKeyword(t *testing.T) {
	f := Filing{Form: "10-K", Description: "management identified a material weakness and restatement"}
	score := ScoreFiling(f)
	assert.Less(t, score, 0.1)
}

func TestScoreFiling_ClampsToUnitInterval(t *testing.T) {
	f := Filing{
		Form:        "S-1",
		Description: "record growth strong increase positive improvement acquisition expansion dividend buyback outperform",
	}
	score := ScoreFiling(f)
	assert.LessOrEqual(t, score, 1.0)
}

func TestCIKCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCIKCache(2)
	c.Put("AAPL", "0000320193")
	c.Put("MSFT", "0000789019")
	c.Get("AAPL") // touch AAPL, MSFT becomes LRU
	c.Put("GOOG", "0001652044")

	_, ok := c.Get("MSFT")
	assert.False(t, ok)

	_, ok = c.Get("AAPL")
	assert.True(t, ok)

	_, ok = c.Get("GOOG")
	assert.True(t, ok)
}

func TestSECAnalyzer_GetSentiment_NoFilings_ReturnsNoData(t *testing.T) {
	a := NewSECAnalyzer(128)
	got := a.GetSentiment(context.Background(), nil)
	assert.True(t, got.NoData)
}

func TestSECAnalyzer_GetSentiment_AveragesAcrossFilings(t *testing.T) {
	a := NewSECAnalyzer(128)
	filings := []Filing{
		{Form: "8-K", Description: "routine update"},
		{Form: "10-Q", Description: "record growth"},
	}
	got := a.GetSentiment(context.Background(), filings)
	require.False(t, got.NoData)
	assert.Equal(t, 2, got.ItemCount)
}
