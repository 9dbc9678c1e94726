// Package labs normalizes raw laboratory rows into the structured view the
// reasoning strategies consume: named analytes, HIGH/LOW/NORMAL flags,
// chronological sessions, and a latest-value aggregate per analyte.
package labs

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/thyra/internal/model"
)

// Monitored lists the seven analytes the engine reasons over, in display
// order. FTI is the free thyroxine index derived from T4 and T3 uptake.
var Monitored = []string{"tsh", "ft4", "t3", "t4", "fti", "t3u", "tpoab"}

// nameTable maps the test names appearing in the source data, plus the
// short forms common in other exports, to analyte keys. Lookup is
// case-insensitive with whitespace collapsed.
var nameTable = map[string]string{
	"thyroid stimulating hormone":     "tsh",
	"tsh":                             "tsh",
	"thyroxine (t4), free":            "ft4",
	"free t4":                         "ft4",
	"free thyroxine":                  "ft4",
	"ft4":                             "ft4",
	"triiodothyronine (t3)":           "t3",
	"t3":                              "t3",
	"calculated thyroxine (t4) index": "fti",
	"free thyroxine index":            "fti",
	"fti":                             "fti",
	"thyroxine (t4)":                  "t4",
	"thyroxine":                       "t4",
	"t4":                              "t4",
	"t3 uptake":                       "t3u",
	"t3u":                             "t3u",
	"thyroid peroxidase antibodies":   "tpoab",
	"thyroid peroxidase ab":           "tpoab",
	"tpoab":                           "tpoab",
	"tpo ab":                          "tpoab",
}

// Normalize maps a raw test name to its analyte key. Names outside the
// monitored panel collapse to their lowercased form so equal names
// always share an aggregate slot regardless of source casing.
func Normalize(raw string) string {
	key := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if name, ok := nameTable[key]; ok {
		return name
	}
	return key
}

// Flag values for a measurement relative to its reference range.
const (
	FlagLow     = "LOW"
	FlagHigh    = "HIGH"
	FlagNormal  = "NORMAL"
	FlagUnknown = "UNKNOWN"
)

// Measurement is one normalized lab value.
type Measurement struct {
	Name      string   // analyte key, or raw name if unmonitored
	RawName   string   // name as it appeared in the record
	ValueText string   // original value string
	Unit      string
	Value     *float64 // parsed value, nil when non-numeric
	Lower     *float64
	Upper     *float64
	Flag      string // LOW | HIGH | NORMAL | UNKNOWN
}

// Session groups the measurements that share a charttime.
type Session struct {
	Time    string // formatted, or "unknown-time"
	Results []Measurement
}

// Summary is the distilled view of one case: chronological sessions, the
// latest value per analyte, and a compact text rendering.
type Summary struct {
	SubjectID      string
	Sessions       []Session
	Aggregate      map[string]Measurement // latest per analyte
	SummaryText    string                 // e.g. "TSH 8.2(HIGH) | FT4 0.6(LOW)"
	AbnormalTokens []string               // sorted unique "analyte:FLAG" for HIGH/LOW
}

var numericRe = regexp.MustCompile(`[^\d.\-eE]`)

// ParseNumeric extracts a float from a lab value string, tolerating
// comparison prefixes and units. Returns nil when nothing numeric remains.
func ParseNumeric(s string) *float64 {
	s = numericRe.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ComputeFlag classifies a value against its reference range. When any of
// the three fails to parse it falls back to the recorded flag, else UNKNOWN.
func ComputeFlag(value, lower, upper, recorded string) string {
	v, lo, hi := ParseNumeric(value), ParseNumeric(lower), ParseNumeric(upper)
	if v != nil && lo != nil && hi != nil {
		switch {
		case *v < *lo:
			return FlagLow
		case *v > *hi:
			return FlagHigh
		default:
			return FlagNormal
		}
	}
	switch f := strings.ToUpper(strings.TrimSpace(recorded)); f {
	case FlagLow, FlagHigh, FlagNormal:
		return f
	}
	return FlagUnknown
}

// chartTimeLayout matches the source data's day-first timestamps.
const chartTimeLayout = "02/01/2006 15:04:05"

func formatChartTime(raw string) string {
	t, err := time.Parse(chartTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return "unknown-time"
	}
	return t.Format("2006-01-02 15:04")
}

// Sessions groups a case's lab rows by charttime, ordered chronologically.
// Rows with unparsable timestamps sort after parsed ones by raw string,
// matching the source pipeline's stable ordering.
func Sessions(c *model.CaseRecord) []Session {
	type keyed struct {
		raw    string
		parsed time.Time
		ok     bool
	}
	byTime := map[string][]model.LabResult{}
	var keys []keyed
	for _, r := range c.LabSessions {
		if _, seen := byTime[r.ChartTime]; !seen {
			t, err := time.Parse(chartTimeLayout, strings.TrimSpace(r.ChartTime))
			keys = append(keys, keyed{raw: r.ChartTime, parsed: t, ok: err == nil})
		}
		byTime[r.ChartTime] = append(byTime[r.ChartTime], r)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && !a.parsed.Equal(b.parsed) {
			return a.parsed.Before(b.parsed)
		}
		return a.raw < b.raw
	})

	sessions := make([]Session, 0, len(keys))
	for _, k := range keys {
		s := Session{Time: formatChartTime(k.raw)}
		for _, r := range byTime[k.raw] {
			s.Results = append(s.Results, Measurement{
				Name:      Normalize(r.TestName),
				RawName:   r.TestName,
				ValueText: r.Value,
				Unit:      r.Unit,
				Value:     ParseNumeric(r.Value),
				Lower:     ParseNumeric(r.RefRangeLower),
				Upper:     ParseNumeric(r.RefRangeUpper),
				Flag:      ComputeFlag(r.Value, r.RefRangeLower, r.RefRangeUpper, r.Flag),
			})
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// Distill builds the structured summary a strategy reasons over. The
// aggregate keeps the latest measurement per analyte (sessions are already
// in chronological order, so later sessions overwrite earlier ones).
func Distill(c *model.CaseRecord) *Summary {
	sum := &Summary{
		SubjectID: c.SubjectID,
		Sessions:  Sessions(c),
		Aggregate: map[string]Measurement{},
	}
	for _, s := range sum.Sessions {
		for _, m := range s.Results {
			sum.Aggregate[m.Name] = m
		}
	}
	for name, m := range sum.Aggregate {
		if (m.Flag == FlagHigh || m.Flag == FlagLow) && isMonitored(name) {
			sum.AbnormalTokens = append(sum.AbnormalTokens, name+":"+m.Flag)
		}
	}
	sort.Strings(sum.AbnormalTokens)

	var segs []string
	for _, key := range Monitored {
		m, ok := sum.Aggregate[key]
		if !ok {
			continue
		}
		val := m.ValueText
		if m.Value != nil {
			val = strconv.FormatFloat(*m.Value, 'g', -1, 64)
		}
		segs = append(segs, fmt.Sprintf("%s %s(%s)", strings.ToUpper(key), val, m.Flag))
	}
	if len(segs) == 0 {
		segs = append(segs, "No core thyroid hormones parsed")
	}
	sum.SummaryText = strings.Join(segs, " | ")
	return sum
}

func isMonitored(name string) bool {
	for _, m := range Monitored {
		if m == name {
			return true
		}
	}
	return false
}

// HasAnyMonitored reports whether at least one of the seven monitored
// analytes appears in the aggregate.
func (s *Summary) HasAnyMonitored() bool {
	for _, m := range Monitored {
		if _, ok := s.Aggregate[m]; ok {
			return true
		}
	}
	return false
}

// FlagOf returns the aggregate flag for an analyte when it is one of
// LOW/HIGH/NORMAL, else the empty string.
func (s *Summary) FlagOf(key string) string {
	m, ok := s.Aggregate[key]
	if !ok {
		return ""
	}
	switch m.Flag {
	case FlagLow, FlagHigh, FlagNormal:
		return m.Flag
	}
	return ""
}
