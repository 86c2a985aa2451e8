// Package dates extracts date ranges from natural-language Spanish
// questions ("ventas de diciembre 2024", "ultimos 7 dias", "este mes") and
// renders them as ISO-8601 (from, to) pairs with an exclusive upper bound.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "sept": time.September, "sep": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

var quarters = map[string][2]time.Month{
	"q1": {time.January, time.March}, "primer trimestre": {time.January, time.March},
	"q2": {time.April, time.June}, "segundo trimestre": {time.April, time.June},
	"q3": {time.July, time.September}, "tercer trimestre": {time.July, time.September},
	"q4": {time.October, time.December}, "cuarto trimestre": {time.October, time.December},
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

var (
	monthYearRe = regexp.MustCompile(`\b(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|sept|octubre|noviembre|diciembre|ene|feb|mar|abr|may|jun|jul|ago|sep|oct|nov|dic)\b(?:\s+(?:de\s+|del\s+)?(\d{4}))?`)
	lastNDaysRe = regexp.MustCompile(`ultim[oa]s?\s+(\d+)\s+dias?`)
	lastNMonRe  = regexp.MustCompile(`ultim[oa]s?\s+(\d+)\s+mes(?:es)?`)
)

const iso = "2006-01-02"

// Range is a half-open [From, To) date interval, both ISO-8601.
type Range struct {
	From string
	To   string
}

// IsZero reports whether no range was detected.
func (r Range) IsZero() bool { return r.From == "" && r.To == "" }

func monthRange(year int, month time.Month) Range {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Range{From: first.Format(iso), To: first.AddDate(0, 1, 0).Format(iso)}
}

func dayRange(day time.Time) Range {
	d := day.Truncate(24 * time.Hour)
	return Range{From: d.Format(iso), To: d.AddDate(0, 0, 1).Format(iso)}
}

// ExtractRange parses the question against the reference clock. Returns the
// zero Range when no date expression is present.
func ExtractRange(question string, now time.Time) Range {
	q := accentFolder.Replace(strings.ToLower(question))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case strings.Contains(q, "hoy"):
		return dayRange(today)
	case strings.Contains(q, "ayer"):
		return dayRange(today.AddDate(0, 0, -1))
	case strings.Contains(q, "esta semana"):
		// Monday-start week.
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -offset)
		return Range{From: monday.Format(iso), To: monday.AddDate(0, 0, 7).Format(iso)}
	case strings.Contains(q, "este mes"):
		return monthRange(today.Year(), today.Month())
	case strings.Contains(q, "mes pasado"):
		prev := today.AddDate(0, -1, 0)
		return monthRange(prev.Year(), prev.Month())
	case strings.Contains(q, "este ano"):
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Range{From: first.Format(iso), To: first.AddDate(1, 0, 0).Format(iso)}
	}

	if m := lastNDaysRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Range{From: today.AddDate(0, 0, -n).Format(iso), To: today.AddDate(0, 0, 1).Format(iso)}
	}
	if m := lastNMonRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Range{From: today.AddDate(0, -n, 0).Format(iso), To: today.AddDate(0, 0, 1).Format(iso)}
	}

	for phrase, span := range quarters {
		if strings.Contains(q, phrase) {
			first := time.Date(today.Year(), span[0], 1, 0, 0, 0, 0, time.UTC)
			last := time.Date(today.Year(), span[1], 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			return Range{From: first.Format(iso), To: last.Format(iso)}
		}
	}

	if m := monthYearRe.FindStringSubmatch(q); m != nil {
		month := spanishMonths[m[1]]
		year := today.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		} else if month > today.Month() {
			// A bare future month means the most recent past occurrence.
			year--
		}
		return monthRange(year, month)
	}

	return Range{}
}

// ExtractComparisonRanges finds two periods in a "X vs Y" question. The
// first named month is the current period, the second the previous one.
// Falls back to zero ranges when fewer than two months are named.
func ExtractComparisonRanges(question string, now time.Time) (Range, Range) {
	q := accentFolder.Replace(strings.ToLower(question))
	matches := monthYearRe.FindAllStringSubmatch(q, 2)
	if len(matches) < 2 {
		return Range{}, Range{}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	resolve := func(m []string) Range {
		month := spanishMonths[m[1]]
		year := today.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		} else if month > today.Month() {
			year--
		}
		return monthRange(year, month)
	}
	return resolve(matches[0]), resolve(matches[1])
}

// FormatContext renders a detected range for progress events.
func FormatContext(r Range) string {
	if r.IsZero() {
		return "ultimos 30 dias"
	}
	return fmt.Sprintf("%s a %s", r.From, r.To)
}
