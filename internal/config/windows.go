package config

import (
	"time"
)

// Window is one compositing period.
type Window struct {
	// Label is the time part of export names: a month name, "season", or
	// <start>_<end>.
	Label string
	Start time.Time
	End   time.Time
}

// SeasonLabel names the peak-season window.
const SeasonLabel = "season"

// ShiftYears moves the window by n years, keeping its label.
func (w Window) ShiftYears(n int) Window {
	w.Start = w.Start.AddDate(n, 0, 0)
	w.End = w.End.AddDate(n, 0, 0)
	return w
}

// Windows lists the run windows for Year: the custom date pairs when set,
// else one window per month, else the 06-15..09-15 peak season. End dates
// are exclusive.
func (c *Config) Windows() ([]Window, error) {
	if len(c.StartDates) > 0 {
		out := make([]Window, len(c.StartDates))
		for i := range c.StartDates {
			start, err := time.Parse(time.DateOnly, c.StartDates[i])
			if err != nil {
				return nil, invalid("start date %q: %v", c.StartDates[i], err)
			}
			end, err := time.Parse(time.DateOnly, c.EndDates[i])
			if err != nil {
				return nil, invalid("end date %q: %v", c.EndDates[i], err)
			}
			if !start.Before(end) {
				return nil, invalid("window %s..%s is empty", c.StartDates[i], c.EndDates[i])
			}
			out[i] = Window{Label: c.StartDates[i] + "_" + c.EndDates[i], Start: start, End: end}
		}
		return out, nil
	}

	if len(c.Months) > 0 {
		out := make([]Window, len(c.Months))
		for i, m := range c.Months {
			start := time.Date(c.Year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			out[i] = Window{Label: time.Month(m).String(), Start: start, End: start.AddDate(0, 1, 0)}
		}
		return out, nil
	}

	return []Window{{
		Label: SeasonLabel,
		Start: time.Date(c.Year, time.June, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(c.Year, time.September, 15, 0, 0, 0, 0, time.UTC),
	}}, nil
}
