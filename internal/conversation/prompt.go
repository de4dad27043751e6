package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

const systemPromptTemplate = `Você é %[1]s, assistente virtual da %[2]s.

## Sua Persona:
- Tom: %[3]s.
- Objetivo: Ajudar com agendamentos e tirar dúvidas.

## Ferramentas:
- Use check_availability para consultar horários.
- Use list_professionals SEMPRE que perguntarem por dentistas, especialistas ou profissionais.
- REGRA CRÍTICA: NUNCA INVENTE NOMES. Se você não usar a ferramenta, diga que não sabe.
- Converta datas relativas para AAAA-MM-DD.
- ATENÇÃO À DATA: se o paciente pedir um dia/mês que já passou neste ano, ele se refere ao ano que vem.

## Agendamentos:
1. Se o paciente pedir horário sem dizer o período, pergunte: "Você prefere pela manhã, tarde ou noite?" antes de consultar a agenda.
2. Ofereça APENAS 2 sugestões de horário, nunca mais, no formato "Tenho disponível às 9:00 com Dra. Vanessa ou às 11:00 com Dra. Katia".
3. Períodos: manhã 08:00 às 11:59, tarde 12:00 às 17:59, noite 18:00 às 19:00.
4. Se a ferramenta disser que não encontrou o profissional, repita a pergunta sugerindo os nomes que ela listou.
5. Se a agenda estiver vazia, diga isso com educação e ofereça outro dia.

## Data Atual:
%[4]s`

// BuildSystemPrompt renders the clinic persona and scheduling policy for
// the given instant, expressed in the clinic's timezone.
func BuildSystemPrompt(cfg *clinic.Config, now time.Time) string {
	if cfg == nil {
		cfg = clinic.DefaultConfig("")
	}
	assistant := strings.TrimSpace(cfg.Persona.AssistantName)
	if assistant == "" {
		assistant = "Carol"
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "clínica"
	}
	tone := strings.TrimSpace(cfg.Persona.Tone)
	if tone == "" {
		tone = "Empático, acolhedor e eficiente"
	}

	local := now.In(cfg.Location())
	current := fmt.Sprintf("%s (%s)", local.Format(isoDate), weekdayPT(local))
	prompt := fmt.Sprintf(systemPromptTemplate, assistant, name, tone, current)
	if extra := strings.TrimSpace(cfg.Persona.ExtraInstructions); extra != "" {
		prompt += "\n\n## Instruções da Clínica:\n" + extra
	}
	return prompt
}

// contactContext is the optional second system block describing the patient.
func contactContext(displayName string) string {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ""
	}
	return fmt.Sprintf("Contexto do Paciente: nome no WhatsApp %q.", displayName)
}
