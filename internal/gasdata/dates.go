package gasdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const dateLayout = "02/01/2006"

var dateLayouts = []string{
	"2/1/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2/1/2006 15:04:05",
	time.RFC3339,
}

// normalizeDate returns raw as dd/mm/yyyy. Excel serial numbers are accepted.
func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= 1 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Format(dateLayout), true
		}
	}
	return "", false
}

// Month identifies a calendar month of readings.
type Month struct {
	Year  int
	Month time.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%02d/%04d", int(m.Month), m.Year)
}

func (m Month) before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// ParseMonth accepts "MM/YYYY" or a bare month number ("3"), which is
// completed with defaultYear.
func ParseMonth(filter string, defaultYear int) (Month, error) {
	filter = strings.TrimSpace(filter)
	monthPart, yearPart, hasYear := strings.Cut(filter, "/")

	mo, err := strconv.Atoi(strings.TrimSpace(monthPart))
	if err != nil || mo < 1 || mo > 12 {
		return Month{}, fmt.Errorf("invalid month filter %q: want MM/YYYY or M", filter)
	}
	year := defaultYear
	if hasYear {
		year, err = strconv.Atoi(strings.TrimSpace(yearPart))
		if err != nil || year < 1900 {
			return Month{}, fmt.Errorf("invalid month filter %q: want MM/YYYY or M", filter)
		}
	}
	return Month{Year: year, Month: time.Month(mo)}, nil
}

func monthOf(date string) (Month, bool) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return Month{}, false
	}
	return Month{Year: t.Year(), Month: t.Month()}, true
}

// FilterMonth keeps the readings dated within the given month, in order.
func FilterMonth(rows []Reading, filter string, defaultYear int) ([]Reading, error) {
	want, err := ParseMonth(filter, defaultYear)
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, len(rows))
	for _, r := range rows {
		if m, ok := monthOf(r.Date); ok && m == want {
			out = append(out, r)
		}
	}
	return out, nil
}

// AvailableMonths lists the distinct months present, oldest first, as MM/YYYY.
func AvailableMonths(rows []Reading) []string {
	seen := make(map[Month]struct{})
	var months []Month
	for _, r := range rows {
		m, ok := monthOf(r.Date)
		if !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].before(months[j]) })

	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	return out
}
