package session

import (
	"fmt"
	"strings"
	"time"
)

// Window is one trading window in a region's local time, "HH:MM" inclusive
// on both ends.
type Window struct {
	Open  string `yaml:"open" json:"open" validate:"required"`
	Close string `yaml:"close" json:"close" validate:"required"`
}

// Config describes one region's continuous trading sessions: a weekday
// filter plus one or more time-of-day windows. Holidays are out of scope.
type Config struct {
	Timezone string   `yaml:"timezone" json:"timezone" validate:"required"`
	Weekdays []string `yaml:"weekdays" json:"weekdays"` // Mon..Sun; empty means Mon–Fri
	Windows  []Window `yaml:"windows" json:"windows" validate:"min=1,dive"`
}

type window struct {
	open  int // minutes since local midnight
	close int
}

type region struct {
	loc      *time.Location
	weekdays map[time.Weekday]bool
	windows  []window
}

// Clock answers whether a named market is in session at an instant. Pure
// after construction; unknown regions are always closed.
type Clock struct {
	regions map[string]region
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func NewClock(cfgs map[string]Config) (*Clock, error) {
	c := &Clock{regions: make(map[string]region, len(cfgs))}
	for name, rc := range cfgs {
		loc, err := time.LoadLocation(rc.Timezone)
		if err != nil {
			return nil, fmt.Errorf("session %s: timezone: %w", name, err)
		}
		days := make(map[time.Weekday]bool, 7)
		if len(rc.Weekdays) == 0 {
			for d := time.Monday; d <= time.Friday; d++ {
				days[d] = true
			}
		} else {
			for _, w := range rc.Weekdays {
				key := strings.ToLower(strings.TrimSpace(w))
				if len(key) > 3 {
					key = key[:3]
				}
				d, ok := weekdayNames[key]
				if !ok {
					return nil, fmt.Errorf("session %s: unknown weekday %q", name, w)
				}
				days[d] = true
			}
		}
		windows := make([]window, 0, len(rc.Windows))
		for _, w := range rc.Windows {
			open, err := parseClock(w.Open)
			if err != nil {
				return nil, fmt.Errorf("session %s: open: %w", name, err)
			}
			cl, err := parseClock(w.Close)
			if err != nil {
				return nil, fmt.Errorf("session %s: close: %w", name, err)
			}
			if cl <= open {
				return nil, fmt.Errorf("session %s: window %s–%s is empty", name, w.Open, w.Close)
			}
			windows = append(windows, window{open: open, close: cl})
		}
		c.regions[name] = region{loc: loc, weekdays: days, windows: windows}
	}
	return c, nil
}

// IsOpen reports whether the region trades at the given instant.
func (c *Clock) IsOpen(name string, at time.Time) bool {
	r, ok := c.regions[name]
	if !ok {
		return false
	}
	local := at.In(r.loc)
	if !r.weekdays[local.Weekday()] {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	for _, w := range r.windows {
		if minute >= w.open && minute <= w.close {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return h*60 + m, nil
}
