package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is a closed date range [Start, End]. Leave records, history windows
// and statistics years are all expressed as periods.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewPeriod builds a period and rejects start > end.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &RangeError{What: "period", From: p.Start.String(), To: p.End.String(), Reason: "both dates are required"}
	}
	if p.Start.After(p.End) {
		return &RangeError{What: "period", From: p.Start.String(), To: p.End.String(), Reason: "start is after end"}
	}
	return nil
}

// Days is the inclusive calendar-day count: (End - Start) + 1.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps uses inclusive bounds: periods sharing a single day overlap,
// adjacent periods (one ends the day before the other starts) do not.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// TouchesYear reports whether either boundary date falls in the given year.
func (p Period) TouchesYear(year int) bool {
	return p.Start.Year() == year || p.End.Year() == year
}

// Lookback returns [anchor - days, anchor], the history window used by payouts.
func Lookback(anchor Date, days int) Period {
	return Period{Start: anchor.AddDays(-days), End: anchor}
}

// YearPeriod returns Jan 1 .. Dec 31 of the year.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
