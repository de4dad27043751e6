package clinicorp

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Handler exposes integration probes so operators can verify a tenant's
// scheduling credentials without going through WhatsApp.
type Handler struct {
	registry *Registry
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(registry *Registry, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registry: registry, logger: logger, now: time.Now}
}

// Routes mounts under /tenants/{tenantID}/clinicorp.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.Check)
	r.Post("/availability", h.Availability)
	r.Post("/appointment", h.Appointment)
	r.Get("/appointments", h.Appointments)
	return r
}

// Check lists professionals as a lightweight credentials test.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	h.registry.Evict(tenantID)
	client, err := h.registry.ClientFor(r.Context(), tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	pros, err := client.ListProfessionals(r.Context())
	if err != nil {
		h.logger.Warn("clinicorp check failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "Falha na autenticação com Clinicorp: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "connected",
		"message":       "Conexão com Clinicorp estabelecida com sucesso!",
		"mode":          client.State(),
		"professionals": len(pros),
	})
}

type availabilityRequest struct {
	Date           string `json:"date"`
	ProfessionalID string `json:"professional_id,omitempty"`
}

// Availability proxies a raw availability lookup.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Date) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "date is required"})
		return
	}
	client, err := h.registry.ClientFor(r.Context(), tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	slots, err := client.CheckAvailability(r.Context(), req.Date, req.ProfessionalID)
	if err != nil {
		h.logger.Error("clinicorp availability failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_slots": slots})
}

// Appointments lists the booked agenda for ?date=YYYY-MM-DD, today when
// omitted.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = h.now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "date must be YYYY-MM-DD"})
		return
	}
	client, err := h.registry.ClientFor(r.Context(), tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	appts, err := client.ListAppointments(r.Context(), date)
	if err != nil {
		h.logger.Error("clinicorp appointments failed", "tenant_id", tenantID, "date", date, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "count": len(appts), "appointments": appts})
}

type appointmentRequest struct {
	PatientName    string `json:"patient_name"`
	Phone          string `json:"phone"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	ProfessionalID string `json:"professional_id"`
	Notes          string `json:"notes,omitempty"`
}

// Appointment creates a patient and books an appointment for them.
func (h *Handler) Appointment(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	client, err := h.registry.ClientFor(r.Context(), tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	patientID, err := client.CreatePatient(r.Context(), PatientInput{Name: req.PatientName, Phone: req.Phone})
	if err != nil {
		h.logger.Error("clinicorp create patient failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	apptID, err := client.CreateAppointment(r.Context(), AppointmentInput{
		PatientID:      patientID,
		Date:           req.Date,
		Time:           req.Time,
		ProfessionalID: req.ProfessionalID,
		Notes:          req.Notes,
	})
	if err != nil {
		h.logger.Error("clinicorp create appointment failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":         "success",
		"patient_id":     patientID,
		"appointment_id": apptID,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
