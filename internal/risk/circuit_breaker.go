package risk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Default circuit breaker thresholds, one set per external dependency the
// cycle runner and executor call out to.
const (
	exchangeMinRequests     = 5
	exchangeFailureRatio    = 0.6
	exchangeOpenTimeout     = 30 * time.Second
	exchangeHalfOpenMaxReqs = 3
	exchangeCountInterval   = 10 * time.Second

	sentimentMinRequests     = 3
	sentimentFailureRatio    = 0.6
	sentimentOpenTimeout     = 30 * time.Second
	sentimentHalfOpenMaxReqs = 2
	sentimentCountInterval   = 10 * time.Second

	dbMinRequests     = 10
	dbFailureRatio    = 0.6
	dbOpenTimeout     = 15 * time.Second
	dbHalfOpenMaxReqs = 5
	dbCountInterval   = 10 * time.Second
)

// CircuitBreakers holds one gobreaker.CircuitBreaker per external
// dependency. Unlike the teacher's CircuitBreakerManager, this is built
// with an explicit constructor taking the caller's Prometheus registerer;
// there is no package-level singleton, so tests and multiple agent
// processes in one binary never fight over shared gauges.
type CircuitBreakers struct {
	Exchange  *gobreaker.CircuitBreaker
	Sentiment *gobreaker.CircuitBreaker
	Database  *gobreaker.CircuitBreaker

	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

// NewCircuitBreakers builds the three named circuit breakers and registers
// their state/request-count gauges with reg.
func NewCircuitBreakers(reg prometheus.Registerer) *CircuitBreakers {
	factory := promauto.With(reg)

	cb := &CircuitBreakers{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrader_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"service"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_circuit_breaker_requests_total",
			Help: "Requests observed by a circuit breaker, by outcome.",
		}, []string{"service", "result"}),
	}

	cb.Exchange = cb.build("exchange", exchangeMinRequests, exchangeFailureRatio, exchangeOpenTimeout, exchangeHalfOpenMaxReqs, exchangeCountInterval)
	cb.Sentiment = cb.build("sentiment", sentimentMinRequests, sentimentFailureRatio, sentimentOpenTimeout, sentimentHalfOpenMaxReqs, sentimentCountInterval)
	cb.Database = cb.build("database", dbMinRequests, dbFailureRatio, dbOpenTimeout, dbHalfOpenMaxReqs, dbCountInterval)

	return cb
}

func (cb *CircuitBreakers) build(name string, minRequests uint32, failureRatio float64, openTimeout time.Duration, halfOpenMaxReqs uint32, countInterval time.Duration) *gobreaker.CircuitBreaker {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenMaxReqs,
		Interval:    countInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			cb.state.WithLabelValues(name).Set(stateValue(to))
		},
	})
	cb.state.WithLabelValues(name).Set(stateValue(breaker.State()))
	return breaker
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Call runs fn through the named breaker and records the outcome.
func (cb *CircuitBreakers) Call(breaker *gobreaker.CircuitBreaker, service string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := breaker.Execute(fn)
	if err != nil {
		cb.requests.WithLabelValues(service, "failure").Inc()
	} else {
		cb.requests.WithLabelValues(service, "success").Inc()
	}
	return result, err
}
