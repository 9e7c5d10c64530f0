// Package resample assigns timestamps to calendar buckets the way the trend
// tables label them: daily, weekly anchored on a weekday, month/quarter/year
// start, and month end.
package resample

import (
	"fmt"
	"strings"
	"time"
)

type unit int

const (
	day unit = iota
	week
	monthStart
	monthEnd
	quarterStart
	yearStart
)

// Rule is a parsed resample rule such as "D", "W", "W-MON", "MS" or "M".
type Rule struct {
	name   string
	unit   unit
	anchor time.Weekday
}

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// Parse parses a rule string. Plain "W" anchors weeks on Sunday, labelling each
// bucket with the week's closing day.
func Parse(s string) (Rule, error) {
	r := strings.ToUpper(strings.TrimSpace(s))
	switch r {
	case "D", "1D":
		return Rule{name: r, unit: day}, nil
	case "W":
		return Rule{name: r, unit: week, anchor: time.Sunday}, nil
	case "MS":
		return Rule{name: r, unit: monthStart}, nil
	case "M", "ME":
		return Rule{name: r, unit: monthEnd}, nil
	case "QS":
		return Rule{name: r, unit: quarterStart}, nil
	case "YS", "AS":
		return Rule{name: r, unit: yearStart}, nil
	}
	if strings.HasPrefix(r, "W-") {
		if wd, ok := weekdays[strings.TrimPrefix(r, "W-")]; ok {
			return Rule{name: r, unit: week, anchor: wd}, nil
		}
	}
	return Rule{}, fmt.Errorf("unsupported resample rule %q", s)
}

// MustParse is Parse for rules known to be valid.
func MustParse(s string) Rule {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rule) String() string { return r.name }

// midnight keeps the calendar date of t and drops its zone.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Label returns the bucket label for t.
func (r Rule) Label(t time.Time) time.Time {
	d := midnight(t)
	switch r.unit {
	case week:
		ahead := (int(r.anchor) - int(d.Weekday()) + 7) % 7
		return d.AddDate(0, 0, ahead)
	case monthStart:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	case monthEnd:
		return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, d.Location())
	case quarterStart:
		q := (int(d.Month()) - 1) / 3
		return time.Date(d.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, d.Location())
	case yearStart:
		return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, d.Location())
	}
	return d
}

// Next returns the label following a bucket label.
func (r Rule) Next(label time.Time) time.Time {
	switch r.unit {
	case week:
		return label.AddDate(0, 0, 7)
	case monthStart:
		return label.AddDate(0, 1, 0)
	case monthEnd:
		first := time.Date(label.Year(), label.Month()+1, 1, 0, 0, 0, 0, label.Location())
		return time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, label.Location())
	case quarterStart:
		return label.AddDate(0, 3, 0)
	case yearStart:
		return label.AddDate(1, 0, 0)
	}
	return label.AddDate(0, 0, 1)
}

// Point is one timestamped value.
type Point struct {
	Time  time.Time
	Value float64
}

// Bucket is a labelled aggregate.
type Bucket struct {
	Label time.Time
	Sum   float64
}

// Sum aggregates points into a contiguous run of buckets from the earliest to
// the latest label; buckets without points carry zero.
func (r Rule) Sum(points []Point) []Bucket {
	if len(points) == 0 {
		return nil
	}
	sums := make(map[time.Time]float64)
	first, last := r.Label(points[0].Time), r.Label(points[0].Time)
	for _, p := range points {
		l := r.Label(p.Time)
		sums[l] += p.Value
		if l.Before(first) {
			first = l
		}
		if l.After(last) {
			last = l
		}
	}
	var out []Bucket
	for l := first; !l.After(last); l = r.Next(l) {
		out = append(out, Bucket{Label: l, Sum: sums[l]})
	}
	return out
}
