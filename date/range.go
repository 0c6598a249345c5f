package date

import (
	"fmt"
	"time"
)

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// NewRange returns the standard period containing d.
func NewRange(d Date, period Period) Range {
	return Range{From: d.StartOf(period), To: d.EndOf(period)}
}

// Contains returns true if date is included in the range (boundaries included).
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Valid reports whether both boundaries are set and From is not after To.
func (r Range) Valid() bool { return !r.From.IsZero() && !r.To.IsZero() && !r.From.After(r.To) }

// Days returns the number of days from From to To.
func (r Range) Days() int { return r.To.Sub(r.From) }

// Period returns the period of this range if it's a standard one.
func (r Range) Period() (p Period, ok bool) {
	switch {
	case r.From == r.To:
		return Daily, true
	case r.From.Weekday() == time.Monday && r.From.EndOf(Weekly) == r.To:
		return Weekly, true
	case r.From.Day() == 1 && r.From.EndOf(Monthly) == r.To:
		return Monthly, true
	case r.From.StartOf(Quarterly) == r.From && r.From.EndOf(Quarterly) == r.To:
		return Quarterly, true
	case r.From.StartOf(Yearly) == r.From && r.From.EndOf(Yearly) == r.To:
		return Yearly, true
	default:
		return Daily, false
	}
}

// Identifier computes a short name for the range: "2025-01" for a month,
// "2025-Q1" for a quarter, and "from_to" for non standard ranges.
func (r Range) Identifier() string {
	p, ok := r.Period()
	if !ok {
		return fmt.Sprintf("%s_%s", r.From, r.To)
	}
	return Label(r.From, p)
}

// Label names the period p containing d.
func Label(d Date, p Period) string {
	switch p {
	case Daily:
		return d.String()
	case Weekly:
		year, week := d.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return d.Format("2006-01")
	case Quarterly:
		return fmt.Sprintf("%d-Q%d", d.Year(), (d.Month()-1)/3+1)
	case Yearly:
		return d.Format("2006")
	default:
		panic("unknown period")
	}
}

// Segment is one piece of a Range cut along period boundaries.
//
// Segments are half-open: Begin belongs to the previous segment and End
// to this one. The first segment begins on the range start.
type Segment struct {
	Begin, End Date
	Name       string
}

// Split cuts r into consecutive segments, one per period, each ending on
// the last business day of its period (or on r.To for the last one).
// Segments are never empty, so a range of a single day has none.
func (r Range) Split(p Period) []Segment {
	if !r.Valid() {
		return nil
	}
	var segments []Segment
	begin := r.From
	for cursor := r.From; !cursor.After(r.To); cursor = cursor.EndOf(p).Add(1) {
		end := cursor.EndOf(p)
		if p != Daily {
			end = end.BusinessDay()
		}
		if end.After(r.To) {
			end = r.To
		}
		if end.Before(begin) {
			end = begin
		}
		if !end.After(begin) {
			// Empty: the first day of a daily split, or a business day
			// adjustment falling on the previous boundary.
			continue
		}
		segments = append(segments, Segment{Begin: begin, End: end, Name: Label(cursor, p)})
		begin = end
	}
	return segments
}
