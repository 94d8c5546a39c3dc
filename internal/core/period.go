package core

import (
	"errors"
	"time"
)

// DateLayout is the wire format for dates sent to the backend.
const DateLayout = "2006-01-02"

const (
	RangeWeek  QuickRange = "week"
	RangeMonth QuickRange = "month"
	RangeYear  QuickRange = "year"
)

// QuickRange is a preset period ending today.
type QuickRange string

var ErrUnknownRange = errors.New("unknown quick range")

// Period returns the preset period ending at now.
func (r QuickRange) Period(now time.Time) (Period, error) {
	var start time.Time
	switch r {
	case RangeWeek:
		start = now.AddDate(0, 0, -7)
	case RangeMonth:
		start = now.AddDate(0, -1, 0)
	case RangeYear:
		start = now.AddDate(-1, 0, 0)
	default:
		return Period{}, ErrUnknownRange
	}
	return Period{Start: start.Format(DateLayout), End: now.Format(DateLayout)}, nil
}

// DaysBack returns the period covering the last n days up to now.
func DaysBack(now time.Time, n int) Period {
	return Period{
		Start: now.AddDate(0, 0, -n).Format(DateLayout),
		End:   now.Format(DateLayout),
	}
}

func parseISODate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t, nil
}
