package clinicorp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleID accepts ids sent either as JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("clinicorp: id is neither string nor number: %s", string(data))
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// Professional is a row from /professionals.
type Professional struct {
	ID   FlexibleID `json:"id"`
	Name string     `json:"name"`
}

// AvailableSlot is a row from the availability calendar. Times are HH:MM.
type AvailableSlot struct {
	From           string     `json:"From"`
	To             string     `json:"To"`
	ProfessionalID FlexibleID `json:"ProfessionalId"`
}

// Appointment is a row from /appointment/get_appointment.
type Appointment struct {
	ID             FlexibleID `json:"id"`
	PatientName    string     `json:"PatientName,omitempty"`
	Date           string     `json:"date,omitempty"`
	From           string     `json:"fromTime,omitempty"`
	To             string     `json:"toTime,omitempty"`
	ProfessionalID FlexibleID `json:"ProfessionalId,omitempty"`
}

// PatientInput is the payload for POST /patients.
type PatientInput struct {
	Name      string `json:"name"`
	CPF       string `json:"cpf,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"birthdate,omitempty"`
}

// AppointmentInput is the payload for POST /appointments.
type AppointmentInput struct {
	PatientID      string `json:"patient_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	ProfessionalID string `json:"professional_id"`
	Notes          string `json:"notes,omitempty"`
}

type createdResponse struct {
	ID FlexibleID `json:"id"`
}

// TokenSet is the OAuth state after a refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix seconds
}

// APIError is returned for non-success responses other than 404.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("clinicorp: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// decodeList tolerates bare arrays and arrays wrapped in a data/items
// object. Rows that fail to decode are skipped, and anything else decodes
// to an empty list.
func decodeList[T any](body []byte) []T {
	out := []T{}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return out
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return out
		}
		for _, key := range []string{"data", "items", "list", "result"} {
			if inner, ok := wrapped[key]; ok {
				return decodeList[T](inner)
			}
		}
		return out
	}
	for _, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
