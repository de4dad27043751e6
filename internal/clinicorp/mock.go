package clinicorp

import (
	"fmt"
	"hash/fnv"
	"time"
)

var mockDirectory = []Professional{
	{ID: "101", Name: "Vanessa Battistini"},
	{ID: "102", Name: "Katia Souza"},
	{ID: "103", Name: "Ricardo Almeida"},
}

var mockSchedule = map[FlexibleID][][2]string{
	"101": {{"08:00", "08:30"}, {"09:00", "09:30"}, {"10:30", "11:00"}, {"14:00", "14:30"}, {"16:30", "17:00"}},
	"102": {{"08:30", "09:00"}, {"13:30", "14:00"}, {"15:00", "15:30"}, {"18:00", "18:30"}},
	"103": {{"11:00", "11:30"}, {"18:30", "19:00"}},
}

func mockProfessionals() []Professional {
	return append([]Professional(nil), mockDirectory...)
}

// mockAvailability is closed on Sundays so callers can exercise the empty
// path deterministically.
func mockAvailability(date, professionalID string) []AvailableSlot {
	out := []AvailableSlot{}
	day, err := time.Parse("2006-01-02", date)
	if err != nil || day.Weekday() == time.Sunday {
		return out
	}
	for _, prof := range mockDirectory {
		if professionalID != "" && string(prof.ID) != professionalID {
			continue
		}
		for _, window := range mockSchedule[prof.ID] {
			out = append(out, AvailableSlot{From: window[0], To: window[1], ProfessionalID: prof.ID})
		}
	}
	return out
}

func mockAppointments(date string) []Appointment {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return []Appointment{}
	}
	return []Appointment{
		{ID: "mock-appt-1", PatientName: "Paciente Exemplo", Date: date, From: "09:30", To: "10:00", ProfessionalID: "101"},
	}
}

func mockID(kind, seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return fmt.Sprintf("mock-%s-%08x", kind, h.Sum32())
}
