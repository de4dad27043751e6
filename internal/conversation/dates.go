package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var (
	dayMonthPattern = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})(?:[/\-.](\d{2}|\d{4}))?$`)

	weekdaysPT = map[string]time.Weekday{
		"domingo": time.Sunday,
		"segunda": time.Monday,
		"terca":   time.Tuesday,
		"quarta":  time.Wednesday,
		"quinta":  time.Thursday,
		"sexta":   time.Friday,
		"sabado":  time.Saturday,
	}

	weekdayNamesPT = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
)

// NormalizeDate resolves a free-form date into YYYY-MM-DD relative to today.
// Accepted forms: ISO dates, dd/mm, dd/mm/yyyy, "hoje", "amanhã",
// "depois de amanhã" and weekday names (next occurrence, today included).
// A day/month that already elapsed this year refers to its next occurrence.
func NormalizeDate(raw string, today time.Time) (string, error) {
	today = dateOnly(today)
	value := strings.TrimSpace(fold(raw))
	value = strings.TrimPrefix(value, "dia ")
	if value == "" {
		return "", fmt.Errorf("conversation: empty date")
	}

	switch value {
	case "hoje":
		return today.Format(isoDate), nil
	case "amanha":
		return today.AddDate(0, 0, 1).Format(isoDate), nil
	case "depois de amanha":
		return today.AddDate(0, 0, 2).Format(isoDate), nil
	}

	if wd, ok := weekdaysPT[strings.TrimSuffix(strings.TrimSuffix(value, "-feira"), " feira")]; ok {
		delta := (int(wd) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, delta).Format(isoDate), nil
	}

	if t, err := time.ParseInLocation(isoDate, value, today.Location()); err == nil {
		// Models sometimes keep the current year for a date that already
		// passed; only same-year dates are rolled.
		if t.Before(today) && t.Year() == today.Year() {
			t = t.AddDate(1, 0, 0)
		}
		return t.Format(isoDate), nil
	}

	m := dayMonthPattern.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("conversation: unrecognised date %q", raw)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := today.Year()
	explicitYear := m[3] != ""
	if explicitYear {
		year, _ = strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
	}

	if explicitYear {
		t, ok := validDate(year, month, day, today.Location())
		if !ok {
			return "", fmt.Errorf("conversation: invalid date %q", raw)
		}
		return t.Format(isoDate), nil
	}
	// Next occurrence on or after today. 29/02 may be up to four years away.
	for y := year; y <= year+4; y++ {
		if t, ok := validDate(y, month, day, today.Location()); ok && !t.Before(today) {
			return t.Format(isoDate), nil
		}
	}
	return "", fmt.Errorf("conversation: invalid date %q", raw)
}

func validDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func weekdayPT(t time.Time) string {
	return weekdayNamesPT[t.Weekday()]
}
