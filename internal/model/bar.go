// Package model holds the data types shared across the decision pipeline,
// the scheduler, and the backtest engine.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample for a symbol at a timeframe.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Timeframe  string
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     int64
	VWAP       *decimal.Decimal
	TradeCount *int64
}

// Key returns the bar's natural primary key.
func (b Bar) Key() (string, time.Time, string) {
	return b.Symbol, b.Timestamp, b.Timeframe
}

// Validate checks the OHLC invariants: low <= open,close <= high and low <= high.
func (b Bar) Validate() error {
	if b.Low.GreaterThan(b.High) {
		return fmt.Errorf("bar %s@%s: low %s > high %s", b.Symbol, b.Timestamp, b.Low, b.High)
	}
	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return fmt.Errorf("bar %s@%s: open %s outside [low,high]", b.Symbol, b.Timestamp, b.Open)
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return fmt.Errorf("bar %s@%s: close %s outside [low,high]", b.Symbol, b.Timestamp, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume %d", b.Symbol, b.Timestamp, b.Volume)
	}
	return nil
}

// IsCrypto reports whether a symbol trades fractional quantities, per the
// "symbol contains a slash" convention used throughout this codebase
// (e.g. "BTC/USD" vs "AAPL").
func IsCrypto(symbol string) bool {
	for _, r := range symbol {
		if r == '/' {
			return true
		}
	}
	return false
}
