package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
)

var honorifics = map[string]bool{
	"dr": true, "dra": true, "doutor": true, "doutora": true,
}

// maxClarifyNames bounds the names offered when a professional is not found.
const maxClarifyNames = 3

// professionalQueryTokens folds the query and drops honorific tokens, also
// when glued to the name ("dra.vanessa").
func professionalQueryTokens(query string) []string {
	folded := fold(query)
	for _, prefix := range []string{"dra.", "dr."} {
		if strings.HasPrefix(folded, prefix) {
			folded = prefix + " " + strings.TrimPrefix(folded, prefix)
			break
		}
	}
	var tokens []string
	for _, tok := range strings.Fields(folded) {
		tok = strings.Trim(tok, ".,;:")
		if tok == "" || honorifics[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ResolveProfessional returns the first directory entry whose full name
// contains every token of the query. Matching ignores case and accents.
func ResolveProfessional(query string, directory []clinicorp.Professional) (clinicorp.Professional, bool) {
	tokens := professionalQueryTokens(query)
	if len(tokens) == 0 {
		return clinicorp.Professional{}, false
	}
	for _, p := range directory {
		name := fold(p.Name)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(name, tok) {
				matched = false
				break
			}
		}
		if matched {
			return p, true
		}
	}
	return clinicorp.Professional{}, false
}

// clarifyProfessional is the tool result for an unresolvable name.
func clarifyProfessional(query string, directory []clinicorp.Professional) string {
	names := make([]string, 0, maxClarifyNames)
	for _, p := range directory {
		if len(names) == maxClarifyNames {
			break
		}
		if strings.TrimSpace(p.Name) != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Não encontrei nenhum profissional com o nome '%s'.", query)
	}
	return fmt.Sprintf("Não encontrei nenhum profissional com o nome '%s'. Tente usar apenas o primeiro nome (Ex: %s...).",
		query, strings.Join(names, ", "))
}

func professionalNames(directory []clinicorp.Professional) map[string]string {
	out := make(map[string]string, len(directory))
	for _, p := range directory {
		out[p.ID.String()] = p.Name
	}
	return out
}
