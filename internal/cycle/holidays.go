package cycle

import "time"

// NYSEHolidays implements HolidayCalendar with the fixed and floating
// market-holiday rules the New York Stock Exchange publishes annually
// (New Year's Day, MLK Day, Presidents Day, Good Friday, Memorial Day,
// Juneteenth, Independence Day, Labor Day, Thanksgiving, Christmas).
// Computed per-year rather than tabulated, so it needs no yearly update.
type NYSEHolidays struct{}

func (NYSEHolidays) IsHoliday(t time.Time) bool {
	for _, h := range holidaysForYear(t.Year()) {
		if h.Year() == t.Year() && h.Month() == t.Month() && h.Day() == t.Day() {
			return true
		}
	}
	return false
}

// observed shifts a fixed holiday falling on a weekend to the nearest
// weekday, per NYSE convention: Saturday moves to Friday, Sunday to
// Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the date of the nth occurrence (1-indexed) of
// weekday in month, or the last occurrence when n is negative.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	if n > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(weekday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+7*(n-1))
	}
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	last := firstOfNext.AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easterSunday computes the Gregorian Easter date via the anonymous
// Gregorian (Meeus/Jones/Butcher) algorithm, used to derive Good Friday.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func holidaysForYear(year int) []time.Time {
	goodFriday := easterSunday(year).AddDate(0, 0, -2)

	return []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.January, time.Monday, 3),   // MLK Day
		nthWeekday(year, time.February, time.Monday, 3),  // Presidents Day
		goodFriday,
		nthWeekday(year, time.May, time.Monday, -1), // Memorial Day
		observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)),
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1), // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
}
