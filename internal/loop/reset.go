package loop

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// easternTime is the timezone daily counters roll over in, matching the
// cycle runner's market-hours check.
var easternTime = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// applyDailyReset zeroes TradesToday and PnLToday the first time a cycle
// runs on a new America/New_York calendar day.
func applyDailyReset(state *model.AgentState, now time.Time) {
	today := now.In(easternTime).Format("2006-01-02")
	if state.LastResetDate == today {
		return
	}
	state.TradesToday = 0
	state.PnLToday = decimal.Zero
	state.LastResetDate = today
}
