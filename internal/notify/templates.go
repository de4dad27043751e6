package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
)

const escalationSubjectTmpl = `[{{.ClinicName}}] Conversa aguardando atendimento: {{.Contact}}`

const escalationTextTmpl = `Olá equipe {{.ClinicName}},

A conversa com {{.Contact}} ({{.Phone}}) precisa de atendimento humano.

Última mensagem do paciente:
{{.LastMessage}}

Conversa: {{.ConversationID}}
Horário: {{.At}}
`

const escalationHTMLTmpl = `<p>Olá equipe {{.ClinicName}},</p>
<p>A conversa com <strong>{{.Contact}}</strong> ({{.Phone}}) precisa de atendimento humano.</p>
<p>Última mensagem do paciente:</p>
<blockquote>{{.LastMessage}}</blockquote>
<p style="color:#666">Conversa: {{.ConversationID}}<br>Horário: {{.At}}</p>
`

var (
	escalationSubject = template.Must(template.New("subject").Option("missingkey=error").Parse(escalationSubjectTmpl))
	escalationText    = template.Must(template.New("text").Option("missingkey=error").Parse(escalationTextTmpl))
	escalationHTML    = htmltemplate.Must(htmltemplate.New("html").Option("missingkey=error").Parse(escalationHTMLTmpl))
)

func render(name string, exec func(*bytes.Buffer) error) (string, error) {
	var buf bytes.Buffer
	if err := exec(&buf); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}
