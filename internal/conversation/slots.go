package conversation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
)

// MaxSuggestions caps the concrete time options offered in one reply.
const MaxSuggestions = 2

// Period is a part of the day a patient may ask for.
type Period string

const (
	PeriodAny       Period = ""
	PeriodMorning   Period = "manha"
	PeriodAfternoon Period = "tarde"
	PeriodEvening   Period = "noite"
)

// bounds returns the inclusive [from, to] range in minutes after midnight.
func (p Period) bounds() (int, int, bool) {
	switch p {
	case PeriodMorning:
		return 8 * 60, 11*60 + 59, true
	case PeriodAfternoon:
		return 12 * 60, 17*60 + 59, true
	case PeriodEvening:
		return 18 * 60, 19 * 60, true
	}
	return 0, 0, false
}

func (p Period) label() string {
	switch p {
	case PeriodMorning:
		return "manhã"
	case PeriodAfternoon:
		return "tarde"
	case PeriodEvening:
		return "noite"
	}
	return ""
}

var (
	morningPattern   = regexp.MustCompile(`\bmanha\b`)
	afternoonPattern = regexp.MustCompile(`\btarde\b`)
	eveningPattern   = regexp.MustCompile(`\bnoite\b`)
)

// DetectPeriod looks for a day-period preference in a patient message.
// "amanhã" is a date, not a period, hence the word boundaries.
func DetectPeriod(text string) Period {
	folded := fold(text)
	switch {
	case morningPattern.MatchString(folded):
		return PeriodMorning
	case afternoonPattern.MatchString(folded):
		return PeriodAfternoon
	case eveningPattern.MatchString(folded):
		return PeriodEvening
	}
	return PeriodAny
}

// suggestion is a slot joined with its professional's display name.
type suggestion struct {
	Date         string
	From         string
	To           string
	Professional string
	startMinutes int
}

// clockMinutes parses "HH:MM" (or "H:MM") into minutes after midnight.
func clockMinutes(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if len(v) > 5 {
		// tolerate "08:00:00"
		v = v[:5]
	}
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, false
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// enrichSlots joins slots with professional names, drops slots outside the
// period and sorts them by start time.
func enrichSlots(date string, slots []clinicorp.AvailableSlot, names map[string]string, period Period, exclude string) []suggestion {
	from, to, bounded := period.bounds()
	out := make([]suggestion, 0, len(slots))
	for _, s := range slots {
		if exclude != "" && s.ProfessionalID.String() == exclude {
			continue
		}
		start, ok := clockMinutes(s.From)
		if !ok {
			continue
		}
		if bounded && (start < from || start > to) {
			continue
		}
		name := names[s.ProfessionalID.String()]
		if name == "" {
			name = "Profissional"
		}
		out = append(out, suggestion{
			Date:         date,
			From:         s.From,
			To:           s.To,
			Professional: name,
			startMinutes: start,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].startMinutes < out[j].startMinutes })
	return out
}

// spreadPick keeps at most n suggestions spaced across the day: the earliest
// and the latest when two are wanted.
func spreadPick(all []suggestion, n int) []suggestion {
	if len(all) <= n {
		return all
	}
	if n <= 1 {
		return all[:n]
	}
	picked := make([]suggestion, 0, n)
	step := float64(len(all)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		picked = append(picked, all[int(float64(i)*step+0.5)])
	}
	return picked
}

// formatAvailability renders the tool result handed back to the model.
func formatAvailability(date string, picks []suggestion) string {
	parts := make([]string, 0, len(picks))
	for _, s := range picks {
		entry := fmt.Sprintf("%s às %s com %s", s.From, s.To, s.Professional)
		if s.Date != date {
			entry = fmt.Sprintf("%s (em %s)", entry, s.Date)
		}
		parts = append(parts, entry)
	}
	return fmt.Sprintf("Horários Disponíveis em %s: %s", date, strings.Join(parts, ", "))
}

func formatNoAvailability(date, professional string, period Period) string {
	var b strings.Builder
	b.WriteString("Sem horários livres para ")
	b.WriteString(date)
	if professional != "" {
		b.WriteString(" com ")
		b.WriteString(professional)
	}
	if label := period.label(); label != "" {
		b.WriteString(" no período da ")
		b.WriteString(label)
	}
	b.WriteString(".")
	return b.String()
}
