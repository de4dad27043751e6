package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
)

// scriptedLLM replays responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      []error
	requests  []LLMRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return LLMResponse{}, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return LLMResponse{}, errors.New("scriptedLLM: no more responses")
	}
	return s.responses[idx], nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type availabilityCall struct {
	date           string
	professionalID string
}

type stubScheduler struct {
	mu            sync.Mutex
	professionals []clinicorp.Professional
	slots         map[string][]clinicorp.AvailableSlot // by date
	listErr       error
	availErr      error
	listCalls     int
	availCalls    []availabilityCall
}

func (s *stubScheduler) ListProfessionals(context.Context) ([]clinicorp.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.professionals, nil
}

func (s *stubScheduler) CheckAvailability(_ context.Context, date, professionalID string) ([]clinicorp.AvailableSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availCalls = append(s.availCalls, availabilityCall{date: date, professionalID: professionalID})
	if s.availErr != nil {
		return nil, s.availErr
	}
	var out []clinicorp.AvailableSlot
	for _, slot := range s.slots[date] {
		if professionalID != "" && slot.ProfessionalID.String() != professionalID {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}

func staticSchedulers(s Scheduler) SchedulerProvider {
	return SchedulerProviderFunc(func(context.Context, string) (Scheduler, error) {
		return s, nil
	})
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []OutboundReply
	err     error
}

func (m *recordingMessenger) SendReply(_ context.Context, reply OutboundReply) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply)
	if m.err != nil {
		return "", m.err
	}
	return "gw-" + reply.ConversationID, nil
}

func (m *recordingMessenger) sent() []OutboundReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundReply(nil), m.replies...)
}

type recordingNotifier struct {
	mu          sync.Mutex
	escalations []Escalation
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, esc Escalation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalations = append(n.escalations, esc)
	return nil
}
