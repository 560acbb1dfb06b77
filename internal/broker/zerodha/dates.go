package zerodha

import (
	"fmt"
	"time"

	"kite-agent-bridge/internal/types"
)

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

// Kite interprets historical ranges in exchange time.
var exchangeLocation = time.FixedZone("IST", 5*60*60+30*60)

// ParseHistoricalDate accepts exactly "YYYY-MM-DD HH:MM:SS" or, failing that,
// a bare "YYYY-MM-DD" which means midnight. Any other shape, including
// surrounding whitespace or fractional seconds, is ErrInvalidDate.
func ParseHistoricalDate(s string) (time.Time, error) {
	for _, layout := range []string{dateTimeLayout, dateLayout} {
		// time.Parse tolerates fractional seconds after "05"; the length
		// check keeps the layout exact.
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, exchangeLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q, expected YYYY-MM-DD HH:MM:SS or YYYY-MM-DD", types.ErrInvalidDate, s)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	fromT, err := ParseHistoricalDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from_date: %w", err)
	}
	toT, err := ParseHistoricalDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to_date: %w", err)
	}
	if toT.Before(fromT) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to_date %s is before from_date %s", types.ErrInvalidDate, to, from)
	}
	return fromT, toT, nil
}
