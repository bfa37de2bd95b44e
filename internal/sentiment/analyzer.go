// Package sentiment scores pre-fetched text/filing items per source
// (news, reddit, sec) and fuses them into one weighted view per spec
// §4.3-4.4. Fetching raw text from news/Reddit/SEC providers is the
// external collaborator's job; these analyzers only score what they are
// handed.
package sentiment

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// FinbertScorer is the ML text-scoring collaborator. No implementation
// ships in this repository (spec §9's redesign flag: "treat the scorer
// as an interface the core consumes").
type FinbertScorer interface {
	Score(ctx context.Context, text string) (compound, pos, neg, neu float64, err error)
}

// TextItem is one piece of pre-fetched text to score (a news article or
// a Reddit post/comment), with its publish time for recency-sensitive
// callers.
type TextItem struct {
	Text        string
	PublishedAt int64 // unix seconds
}

// Filing is one pre-fetched SEC EDGAR filing summary.
type Filing struct {
	Form        string
	Description string
	FiledAt     int64 // unix seconds
}

// itemSentiment is one scored item's compound value, used internally to
// compute the per-source average/confidence.
type itemSentiment struct {
	compound float64
}

// aggregateItems implements the shared per-source fusion rule used by
// both the news and reddit analyzers: average compound score, bucket
// into a label by the +-0.05 thresholds, and set confidence to the
// fraction of items whose label matches the majority bucket.
func aggregateItems(items []itemSentiment) (score, confidence float64) {
	if len(items) == 0 {
		return 0, 0
	}

	var sum float64
	var positive, negative, neutral int
	for _, it := range items {
		sum += it.compound
		switch model.LabelFromScore(it.compound) {
		case model.SentimentPositive:
			positive++
		case model.SentimentNegative:
			negative++
		default:
			neutral++
		}
	}

	score = sum / float64(len(items))

	maxCount := positive
	if negative > maxCount {
		maxCount = negative
	}
	if neutral > maxCount {
		maxCount = neutral
	}
	confidence = float64(maxCount) / float64(len(items))
	return score, confidence
}

func noData(source model.SentimentSource) model.SourceSentiment {
	return model.SourceSentiment{
		Source:    source,
		Sentiment: model.SentimentNeutral,
		NoData:    true,
	}
}

// NewsAnalyzer scores pre-fetched news articles. It owns its own rate
// limiter, per spec §4.3's "each analyzer owns its limiter" rule.
type NewsAnalyzer struct {
	scorer  FinbertScorer
	limiter *rate.Limiter
}

// NewNewsAnalyzer builds a news analyzer capped at the given requests-
// per-second ceiling.
func NewNewsAnalyzer(scorer FinbertScorer, requestsPerSecond float64) *NewsAnalyzer {
	return &NewsAnalyzer{scorer: scorer, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// GetSentiment scores the given pre-fetched articles. It returns a
// sentinel "no data" result (NoData=true), not an error, when no item
// can be scored.
func (a *NewsAnalyzer) GetSentiment(ctx context.Context, items []TextItem) model.SourceSentiment {
	if len(items) == 0 {
		return noData(model.SourceNews)
	}

	scored := make([]itemSentiment, 0, len(items))
	for _, it := range items {
		if err := a.limiter.Wait(ctx); err != nil {
			break
		}
		compound, _, _, _, err := a.scorer.Score(ctx, it.Text)
		if err != nil {
			continue
		}
		scored = append(scored, itemSentiment{compound: compound})
	}

	if len(scored) == 0 {
		return noData(model.SourceNews)
	}

	score, confidence := aggregateItems(scored)
	return model.SourceSentiment{
		Source:     model.SourceNews,
		Sentiment:  model.LabelFromScore(score),
		Score:      score,
		Confidence: confidence,
		ItemCount:  len(scored),
		Diagnostic: map[string]any{"headlines": headlines(items)},
	}
}

func headlines(items []TextItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Text)
	}
	return out
}

// RedditAnalyzer scores pre-fetched Reddit posts/comments and adds the
// reddit-only trending_score (mentions per lookback hour).
type RedditAnalyzer struct {
	scorer  FinbertScorer
	limiter *rate.Limiter
}

// NewRedditAnalyzer builds a reddit analyzer capped at the given
// requests-per-second ceiling (the app's own PRAW-style throughput
// budget).
func NewRedditAnalyzer(scorer FinbertScorer, requestsPerSecond float64) *RedditAnalyzer {
	return &RedditAnalyzer{scorer: scorer, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// GetSentiment scores pre-fetched Reddit items over lookbackHours,
// computing trending_score = item count / lookback hours.
func (a *RedditAnalyzer) GetSentiment(ctx context.Context, items []TextItem, lookbackHours float64) model.SourceSentiment {
	if len(items) == 0 {
		return noData(model.SourceReddit)
	}

	scored := make([]itemSentiment, 0, len(items))
	for _, it := range items {
		if err := a.limiter.Wait(ctx); err != nil {
			break
		}
		compound, _, _, _, err := a.scorer.Score(ctx, it.Text)
		if err != nil {
			continue
		}
		scored = append(scored, itemSentiment{compound: compound})
	}

	if len(scored) == 0 {
		return noData(model.SourceReddit)
	}

	score, confidence := aggregateItems(scored)

	var trending float64
	if lookbackHours > 0 {
		trending = float64(len(scored)) / lookbackHours
	}

	return model.SourceSentiment{
		Source:     model.SourceReddit,
		Sentiment:  model.LabelFromScore(score),
		Score:      score,
		Confidence: confidence,
		ItemCount:  len(scored),
		Diagnostic: map[string]any{"top_posts": headlines(items), "trending_score": trending},
	}
}

// secFilingTypeBaseSentiment is the per-form base sentiment table taken
// verbatim from the reference filing-sentiment scorer.
var secFilingTypeBaseSentiment = map[string]float64{
	"8-K":     0.0,
	"10-Q":    0.1,
	"10-K":    0.1,
	"4":       0.0,
	"SC 13G":  0.2,
	"SC 13D":  0.2,
	"S-1":     0.3,
}

var secPositiveKeywords = []string{
	"beat", "exceed", "growth", "record", "strong", "increase", "positive",
	"improvement", "acquisition", "expansion", "dividend", "buyback",
	"outperform", "above expectations", "guidance raise", "upgrade",
}

var secNegativeKeywords = []string{
	"miss", "below", "decline", "weak", "decrease", "negative", "loss",
	"impairment", "restructuring", "layoff", "investigation", "lawsuit",
	"restatement", "concern", "warning", "guidance lower", "downgrade",
}

// ScoreFiling computes one SEC filing's sentiment: per-form base value
// adjusted by +-0.2 per matched positive/negative description keyword,
// clamped to [-1, 1]. Grounded verbatim on the reference SEC analyzer.
func ScoreFiling(f Filing) float64 {
	score := secFilingTypeBaseSentiment[f.Form]

	desc := strings.ToLower(f.Description)
	for _, kw := range secPositiveKeywords {
		if strings.Contains(desc, kw) {
			score += 0.2
		}
	}
	for _, kw := range secNegativeKeywords {
		if strings.Contains(desc, kw) {
			score -= 0.2
		}
	}

	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// cikCache is a tiny in-process LRU mapping symbol -> 10-digit zero-
// padded CIK, warmed from the SEC ticker table by the caller (fetching
// the ticker table itself is out of scope: a raw HTTP client).
type cikCache struct {
	capacity int
	order    []string
	entries  map[string]string
}

// NewCIKCache builds an LRU cache with the given capacity.
func NewCIKCache(capacity int) *cikCache {
	return &cikCache{capacity: capacity, entries: make(map[string]string)}
}

// Put records symbol -> cik, evicting the least recently used entry when
// the cache is full.
func (c *cikCache) Put(symbol, cik string) {
	if _, ok := c.entries[symbol]; !ok && len(c.entries) >= c.capacity && c.capacity > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[symbol] = cik
	c.order = append(c.order, symbol)
}

// Get looks up a symbol's CIK, promoting it to most-recently-used.
func (c *cikCache) Get(symbol string) (string, bool) {
	cik, ok := c.entries[symbol]
	if !ok {
		return "", false
	}
	for i, s := range c.order {
		if s == symbol {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, symbol)
	return cik, true
}

// SECAnalyzer scores pre-fetched SEC filings. It owns a limiter capped
// at the SEC EDGAR fair-access ceiling of 10 req/s.
type SECAnalyzer struct {
	limiter *rate.Limiter
	ciks    *cikCache
}

// NewSECAnalyzer builds a SEC analyzer with the given CIK cache capacity.
func NewSECAnalyzer(cikCacheSize int) *SECAnalyzer {
	return &SECAnalyzer{
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		ciks:    NewCIKCache(cikCacheSize),
	}
}

// ResolveCIK returns the cached CIK for symbol, if known.
func (a *SECAnalyzer) ResolveCIK(symbol string) (string, bool) {
	return a.ciks.Get(symbol)
}

// WarmCIK seeds the cache with a symbol -> CIK mapping from the SEC
// ticker table (fetched externally).
func (a *SECAnalyzer) WarmCIK(symbol, cik string) {
	a.ciks.Put(symbol, cik)
}

// GetSentiment scores pre-fetched SEC filings.
func (a *SECAnalyzer) GetSentiment(ctx context.Context, filings []Filing) model.SourceSentiment {
	if len(filings) == 0 {
		return noData(model.SourceSEC)
	}

	var sum float64
	events := make([]map[string]any, 0)
	for _, f := range filings {
		if err := a.limiter.Wait(ctx); err != nil {
			break
		}
		s := ScoreFiling(f)
		sum += s
		if f.Form == "8-K" {
			events = append(events, map[string]any{"form": f.Form, "description": f.Description, "score": s})
		}
	}

	score := sum / float64(len(filings))
	confidence := float64(len(filings)) / 10.0
	if confidence > 1 {
		confidence = 1
	}

	return model.SourceSentiment{
		Source:     model.SourceSEC,
		Sentiment:  model.LabelFromScore(score),
		Score:      score,
		Confidence: confidence,
		ItemCount:  len(filings),
		Diagnostic: map[string]any{"material_events": events},
	}
}
