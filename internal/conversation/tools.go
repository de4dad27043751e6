package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	ToolCheckAvailability = "check_availability"
	ToolListProfessionals = "list_professionals"
)

// ToolDefinitions is the fixed schema offered to the model in the first round.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolCheckAvailability,
			Description: "Verifica horários disponíveis na agenda para uma data específica.",
			Parameters: []ToolParameter{
				{Name: "date", Description: "Data no formato YYYY-MM-DD", Required: true},
				{Name: "professional_name", Description: "Nome do profissional (opcional) para filtrar a agenda."},
			},
		},
		{
			Name:        ToolListProfessionals,
			Description: "OBRIGATÓRIO: Busca a lista REAL de profissionais da clínica. Use antes de citar qualquer nome.",
		},
	}
}

// Scheduler is the slice of the scheduling adapter the tools need.
// *clinicorp.Client satisfies it.
type Scheduler interface {
	ListProfessionals(ctx context.Context) ([]clinicorp.Professional, error)
	CheckAvailability(ctx context.Context, date, professionalID string) ([]clinicorp.AvailableSlot, error)
}

// SchedulerProvider hands out the tenant-scoped scheduler.
type SchedulerProvider interface {
	SchedulerFor(ctx context.Context, tenantID string) (Scheduler, error)
}

// SchedulerProviderFunc adapts a function to SchedulerProvider.
type SchedulerProviderFunc func(ctx context.Context, tenantID string) (Scheduler, error)

func (f SchedulerProviderFunc) SchedulerFor(ctx context.Context, tenantID string) (Scheduler, error) {
	return f(ctx, tenantID)
}

// ClinicorpSchedulers serves schedulers from the per-tenant client registry.
func ClinicorpSchedulers(registry *clinicorp.Registry) SchedulerProvider {
	return SchedulerProviderFunc(func(ctx context.Context, tenantID string) (Scheduler, error) {
		client, err := registry.ClientFor(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

// WidenStrategy decides where to look when a day has fewer than two
// suggestions for the requested period.
type WidenStrategy string

const (
	WidenNone              WidenStrategy = "none"
	WidenNextDay           WidenStrategy = "next_day"
	WidenOtherProfessional WidenStrategy = "other_professional"
)

// ParseWidenStrategy maps a config value, defaulting to WidenNone.
func ParseWidenStrategy(v string) WidenStrategy {
	switch WidenStrategy(strings.ToLower(strings.TrimSpace(v))) {
	case WidenNextDay:
		return WidenNextDay
	case WidenOtherProfessional:
		return WidenOtherProfessional
	}
	return WidenNone
}

// toolExecutor runs the model's tool calls for one inbound message. Every
// failure becomes a result string so the second round can still answer.
type toolExecutor struct {
	tenantID     string
	scheduler    Scheduler
	directory    DirectoryCache
	today        time.Time
	period       Period
	widen        WidenStrategy
	widenMaxDays int
	timeout      time.Duration
	metrics      *metrics.PipelineMetrics
	logger       *logging.Logger
}

func (x *toolExecutor) Execute(ctx context.Context, call ToolCall) string {
	ctx, span := conversationTracer.Start(ctx, "conversation.tool."+call.Name)
	defer span.End()

	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		x.metrics.ObserveToolCall(call.Name, "bad_arguments")
		return fmt.Sprintf("Argumentos inválidos para %s.", call.Name)
	}

	var result, outcome string
	switch call.Name {
	case ToolCheckAvailability:
		result, outcome = x.checkAvailability(ctx, args["date"], args["professional_name"])
	case ToolListProfessionals:
		result, outcome = x.listProfessionals(ctx)
	default:
		result, outcome = "Ferramenta desconhecida.", "unknown_tool"
	}
	x.metrics.ObserveToolCall(call.Name, outcome)
	x.logger.Info("tool executed",
		"tenant_id", x.tenantID,
		"tool", call.Name,
		"outcome", outcome,
	)
	return result
}

func (x *toolExecutor) professionals(ctx context.Context) ([]clinicorp.Professional, error) {
	if x.directory == nil {
		return x.scheduler.ListProfessionals(ctx)
	}
	return x.directory.Professionals(ctx, x.tenantID, x.scheduler.ListProfessionals)
}

func (x *toolExecutor) listProfessionals(ctx context.Context) (string, string) {
	if x.scheduler == nil {
		return "Erro: Integração incompleta.", "not_configured"
	}
	profs, err := x.professionals(ctx)
	if err != nil {
		x.logger.Warn("list professionals failed", "tenant_id", x.tenantID, "error", err)
		return fmt.Sprintf("Erro ao listar profissionais: %v", err), "error"
	}
	if len(profs) == 0 {
		return "Nenhum profissional encontrado.", "empty"
	}
	summary := make([]string, 0, len(profs))
	for _, p := range profs {
		name := p.Name
		if strings.TrimSpace(name) == "" {
			name = "Sem Nome"
		}
		summary = append(summary, fmt.Sprintf("%s (ID: %s)", name, p.ID))
	}
	return "Profissionais Disponíveis: " + strings.Join(summary, ", "), "ok"
}

func (x *toolExecutor) checkAvailability(ctx context.Context, rawDate, professionalName string) (string, string) {
	if x.scheduler == nil {
		return "Erro: Integração Clinicorp não configurada.", "not_configured"
	}
	date, err := NormalizeDate(rawDate, x.today)
	if err != nil {
		return fmt.Sprintf("Data inválida '%s'. Use o formato AAAA-MM-DD.", rawDate), "bad_arguments"
	}

	directory, err := x.professionals(ctx)
	if err != nil {
		// Names are cosmetic; slots are still worth returning.
		x.logger.Warn("directory lookup for enrichment failed", "tenant_id", x.tenantID, "error", err)
	}

	var professionalID, professionalLabel string
	if strings.TrimSpace(professionalName) != "" && len(professionalQueryTokens(professionalName)) > 0 {
		if err != nil {
			return fmt.Sprintf("Erro ao consultar Clinicorp: %v", err), "error"
		}
		prof, ok := ResolveProfessional(professionalName, directory)
		if !ok {
			return clarifyProfessional(professionalName, directory), "not_found"
		}
		professionalID, professionalLabel = prof.ID.String(), prof.Name
	}
	names := professionalNames(directory)

	slots, err := x.scheduler.CheckAvailability(ctx, date, professionalID)
	if err != nil {
		x.logger.Warn("availability lookup failed", "tenant_id", x.tenantID, "date", date, "error", err)
		return fmt.Sprintf("Erro ao consultar Clinicorp: %v", err), "error"
	}
	found := enrichSlots(date, slots, names, x.period, "")
	if len(found) < MaxSuggestions {
		found = append(found, x.widenSearch(ctx, date, professionalID, names, MaxSuggestions-len(found))...)
	}
	if len(found) == 0 {
		return formatNoAvailability(date, professionalLabel, x.period), "empty"
	}
	return formatAvailability(date, pickSuggestions(found)), "ok"
}

// pickSuggestions spreads within the requested day first and only tops up
// with widened results when the day itself has fewer than two.
func pickSuggestions(found []suggestion) []suggestion {
	if len(found) == 0 {
		return nil
	}
	primary := found[0].Date
	var sameDay, others []suggestion
	for _, s := range found {
		if s.Date == primary {
			sameDay = append(sameDay, s)
		} else {
			others = append(others, s)
		}
	}
	picks := spreadPick(sameDay, MaxSuggestions)
	for _, s := range others {
		if len(picks) == MaxSuggestions {
			break
		}
		picks = append(picks, s)
	}
	return picks
}

func (x *toolExecutor) widenSearch(ctx context.Context, date, professionalID string, names map[string]string, want int) []suggestion {
	switch x.widen {
	case WidenNextDay:
		day, err := time.ParseInLocation(isoDate, date, x.today.Location())
		if err != nil {
			return nil
		}
		var extra []suggestion
		for i := 1; i <= x.widenMaxDays && len(extra) < want; i++ {
			next := day.AddDate(0, 0, i).Format(isoDate)
			slots, err := x.scheduler.CheckAvailability(ctx, next, professionalID)
			if err != nil {
				x.logger.Warn("widened availability lookup failed", "tenant_id", x.tenantID, "date", next, "error", err)
				return extra
			}
			for _, s := range enrichSlots(next, slots, names, x.period, "") {
				if len(extra) == want {
					break
				}
				extra = append(extra, s)
			}
		}
		return extra
	case WidenOtherProfessional:
		if professionalID == "" {
			return nil
		}
		slots, err := x.scheduler.CheckAvailability(ctx, date, "")
		if err != nil {
			x.logger.Warn("widened availability lookup failed", "tenant_id", x.tenantID, "date", date, "error", err)
			return nil
		}
		extra := enrichSlots(date, slots, names, x.period, professionalID)
		if len(extra) > want {
			extra = extra[:want]
		}
		return extra
	}
	return nil
}
