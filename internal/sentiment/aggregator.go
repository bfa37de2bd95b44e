package sentiment

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// Weights is the per-source fusion weighting. Defaults to news=0.40,
// reddit=0.25, sec=0.25 (leaving 0.10 un-named headroom for a future
// source), per spec §4.4.
type Weights struct {
	News   float64
	Reddit float64
	SEC    float64
}

// DefaultWeights is the spec's default fusion weighting.
var DefaultWeights = Weights{News: 0.40, Reddit: 0.25, SEC: 0.25}

// SourceFetcher fetches one source's sentiment for a symbol. The
// aggregator fans these out in parallel with a shared per-call timeout;
// a fetcher error is retried up to two more times (after 100ms, then
// 200ms) within that timeout. A fetcher that still errors, or that
// returns a NoData=true result, is tolerated and excluded from fusion.
type SourceFetcher func(ctx context.Context, symbol string) (model.SourceSentiment, error)

// Aggregator fuses per-source sentiment into one AggregatedSentiment,
// fanning the configured fetchers out in parallel via errgroup and
// tolerating individual source failures as "no data" rather than failing
// the whole cycle.
type Aggregator struct {
	Weights  Weights
	Fetchers map[model.SentimentSource]SourceFetcher
	Timeout  time.Duration
}

// NewAggregator builds an aggregator with the given per-source fetchers
// and fusion weights. A zero Timeout defaults to 10 seconds.
func NewAggregator(fetchers map[model.SentimentSource]SourceFetcher, weights Weights, timeout time.Duration) *Aggregator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{Weights: weights, Fetchers: fetchers, Timeout: timeout}
}

// Aggregate fans out every configured source fetcher in parallel, fuses
// the results with the configured weights (renormalized over sources
// that actually returned data), and computes an agreement_level as the
// fraction of contributing sources that carry the most common per-source
// label.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string) (model.AggregatedSentiment, error) {
	perSource := make(map[model.SentimentSource]model.SourceSentiment, len(a.Fetchers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for source, fetch := range a.Fetchers {
		source, fetch := source, fetch
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, a.Timeout)
			defer cancel()

			result, err := fetch(callCtx, symbol)
			for attempt := 1; err != nil && attempt < 3; attempt++ {
				select {
				case <-callCtx.Done():
				case <-time.After((50 * time.Millisecond) << attempt):
					result, err = fetch(callCtx, symbol)
				}
				if callCtx.Err() != nil {
					break
				}
			}
			if err != nil {
				result = noData(source)
			}

			mu.Lock()
			perSource[source] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.AggregatedSentiment{}, err
	}

	return fuse(perSource, a.Weights), nil
}

// FuseRecords fuses persisted sentiment records (one per source, as
// returned by a historical lookup) the same way Aggregate fuses live
// fetcher results, for callers reconstructing an AggregatedSentiment from
// storage rather than from a live fetch.
func FuseRecords(records []model.SentimentRecord, weights Weights) model.AggregatedSentiment {
	perSource := make(map[model.SentimentSource]model.SourceSentiment, len(records))
	for _, r := range records {
		perSource[r.Source] = model.SourceSentiment{
			Source:     r.Source,
			Sentiment:  r.Sentiment,
			Score:      r.Score,
			Confidence: r.Confidence,
			ItemCount:  r.ItemCount,
			NoData:     r.NoData,
		}
	}
	return fuse(perSource, weights)
}

// weightOf maps a source to its configured weight.
func (w Weights) weightOf(source model.SentimentSource) float64 {
	switch source {
	case model.SourceNews:
		return w.News
	case model.SourceReddit:
		return w.Reddit
	case model.SourceSEC:
		return w.SEC
	default:
		return 0
	}
}

// fuse combines per-source results into one AggregatedSentiment,
// renormalizing weights over the sources that actually produced data.
func fuse(perSource map[model.SentimentSource]model.SourceSentiment, weights Weights) model.AggregatedSentiment {
	var weightedSum, weightedConfidence, totalWeight float64
	var used []model.SentimentSource

	for source, result := range perSource {
		if result.NoData {
			continue
		}
		w := weights.weightOf(source)
		if w <= 0 {
			continue
		}
		weightedSum += result.Score * w
		weightedConfidence += result.Confidence * w
		totalWeight += w
		used = append(used, source)
	}

	if totalWeight == 0 {
		return model.AggregatedSentiment{
			OverallSentiment: model.SentimentNeutral,
			PerSource:        perSource,
		}
	}

	score := weightedSum / totalWeight
	label := model.LabelFromScore(score)

	counts := make(map[model.SentimentLabel]int, len(used))
	var majority int
	for _, source := range used {
		l := perSource[source].Sentiment
		counts[l]++
		if counts[l] > majority {
			majority = counts[l]
		}
	}
	agreement := float64(majority) / float64(len(used))

	confidence := weightedConfidence / totalWeight

	return model.AggregatedSentiment{
		OverallSentiment: label,
		Score:            score,
		Confidence:       confidence,
		SourcesUsed:      used,
		AgreementLevel:   agreement,
		PerSource:        perSource,
	}
}
