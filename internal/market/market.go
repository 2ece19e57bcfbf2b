package market

import "time"

// Mode says how far down the fallback chain a resolution had to go.
type Mode string

const (
	ModeIntraday    Mode = "INTRADAY"
	ModeDaily       Mode = "DAILY"
	ModeQuoteOnly   Mode = "QUOTE_ONLY"
	ModeUnavailable Mode = "UNAVAILABLE"
)

// BasisKind identifies the reference price a change is computed against.
type BasisKind string

const (
	BasisSessionOpen BasisKind = "SESSION_OPEN"
	BasisPrevClose   BasisKind = "PREVIOUS_CLOSE"
	BasisNone        BasisKind = "NONE"
)

// BasisPolicy is the per-instrument preference for intraday comparisons.
type BasisPolicy string

const (
	// PolicySessionOpen compares against the session's opening price while
	// the instrument's market is in session, previous close otherwise.
	PolicySessionOpen BasisPolicy = "session-open"
	// PolicyPrevClose always compares against the previous daily close.
	PolicyPrevClose BasisPolicy = "prev-close"
)

// Instrument is one logical thing to price. Candidates are alternative
// ticker spellings tried in order; the list is never empty in a validated
// configuration.
type Instrument struct {
	Name       string      `yaml:"name" json:"name" validate:"required"`
	Region     string      `yaml:"region" json:"region" validate:"required"`
	Candidates []string    `yaml:"candidates" json:"candidates" validate:"required,min=1"`
	Basis      BasisPolicy `yaml:"basis" json:"basis" default:"prev-close"`
}

// SeriesPoint is one sampled bar. Open may be missing for some symbols and
// granularities; Close is always present (rows without one are dropped
// before a point is built).
type SeriesPoint struct {
	Time  time.Time
	Open  *float64
	Close float64
}

// TimeSeries is a non-empty, time-ordered run of points for one concrete
// symbol at one granularity. Use NewTimeSeries; an empty result is
// represented by a nil *TimeSeries, never a zero-length one.
type TimeSeries struct {
	Symbol   string
	Interval string
	Points   []SeriesPoint
}

func NewTimeSeries(symbol, interval string, points []SeriesPoint) *TimeSeries {
	if len(points) == 0 {
		return nil
	}
	return &TimeSeries{Symbol: symbol, Interval: interval, Points: points}
}

func (s *TimeSeries) Len() int { return len(s.Points) }

func (s *TimeSeries) Last() SeriesPoint { return s.Points[len(s.Points)-1] }

// LastClose is the newest closing price.
func (s *TimeSeries) LastClose() float64 { return s.Last().Close }

// PrevClose is the second-to-last closing price, false when the series is
// too short to have one.
func (s *TimeSeries) PrevClose() (float64, bool) {
	if len(s.Points) < 2 {
		return 0, false
	}
	return s.Points[len(s.Points)-2].Close, true
}

// FirstOpen is the series' opening price: the first point's Open, or its
// Close when the provider sent no open for that bar.
func (s *TimeSeries) FirstOpen() float64 {
	p := s.Points[0]
	if p.Open != nil {
		return *p.Open
	}
	return p.Close
}

// Tier is one upstream request shape: a lookback range sampled at an
// interval, usable only when it yields at least MinPoints rows.
type Tier struct {
	Range     string `yaml:"range" json:"range" validate:"required"`
	Interval  string `yaml:"interval" json:"interval" validate:"required"`
	MinPoints int    `yaml:"min_points" json:"min_points" default:"2"`
}

// TierPlan is an ordered tier list plus the cache lifetime of whatever the
// plan produces. Class names the plan's cache key space.
type TierPlan struct {
	Class string        `yaml:"-" json:"-"`
	TTL   time.Duration `yaml:"ttl" json:"ttl" default:"60s"`
	Tiers []Tier        `yaml:"tiers" json:"tiers" validate:"min=1,dive"`
}

// Snapshot is the immutable outcome of resolving one instrument. Price
// fields are nil when the corresponding value could not be determined.
type Snapshot struct {
	OK        bool       `json:"ok"`
	Mode      Mode       `json:"mode"`
	Symbol    string     `json:"symbol,omitempty"`
	Now       *float64   `json:"now"`
	Base      *float64   `json:"base"`
	BasisKind BasisKind  `json:"basis_kind"`
	ChangeAbs *float64   `json:"change_abs"`
	ChangePct *float64   `json:"change_pct"`
	LastTick  *time.Time `json:"last_tick,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// WithChange fills ChangeAbs/ChangePct from Now and Base. Both stay nil
// unless the base is known and non-zero.
func (sn Snapshot) WithChange() Snapshot {
	if sn.Now == nil || sn.Base == nil || *sn.Base == 0 {
		return sn
	}
	abs := *sn.Now - *sn.Base
	pct := (*sn.Now / *sn.Base - 1) * 100
	sn.ChangeAbs = &abs
	sn.ChangePct = &pct
	return sn
}

// Float is a convenience for building nullable price fields.
func Float(v float64) *float64 { return &v }
