package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
)

var testDirectory = []clinicorp.Professional{
	{ID: "101", Name: "Vanessa Battistini"},
	{ID: "102", Name: "Katia Souza"},
}

func TestResolveProfessionalStripsHonorifics(t *testing.T) {
	for _, query := range []string{"Dra. Vanessa", "dra vanessa", "Doutora Vanessa Battistini", "Dra.Vanessa", "VANESSA"} {
		prof, ok := ResolveProfessional(query, testDirectory)
		assert.True(t, ok, query)
		assert.Equal(t, "101", prof.ID.String(), query)
	}
}

func TestResolveProfessionalIgnoresAccents(t *testing.T) {
	prof, ok := ResolveProfessional("Dra. Kátia", testDirectory)
	assert.True(t, ok)
	assert.Equal(t, "102", prof.ID.String())
}

func TestResolveProfessionalRequiresEveryToken(t *testing.T) {
	_, ok := ResolveProfessional("Vanessa Souza", testDirectory)
	assert.False(t, ok)

	_, ok = ResolveProfessional("Dra. Ana", testDirectory)
	assert.False(t, ok)

	_, ok = ResolveProfessional("Dra.", testDirectory)
	assert.False(t, ok)
}

func TestResolveProfessionalFirstMatchWins(t *testing.T) {
	dir := []clinicorp.Professional{
		{ID: "1", Name: "Ana Paula Lima"},
		{ID: "2", Name: "Ana Beatriz"},
	}
	prof, ok := ResolveProfessional("ana", dir)
	assert.True(t, ok)
	assert.Equal(t, "1", prof.ID.String())
}

func TestClarifyProfessionalListsAtMostThreeNames(t *testing.T) {
	dir := []clinicorp.Professional{
		{ID: "1", Name: "Vanessa Battistini"},
		{ID: "2", Name: "Katia Souza"},
		{ID: "3", Name: "Ricardo Almeida"},
		{ID: "4", Name: "Paulo Mendes"},
	}
	msg := clarifyProfessional("Dra. Ana", dir)
	assert.Contains(t, msg, "Não encontrei nenhum profissional com o nome 'Dra. Ana'")
	assert.Contains(t, msg, "Vanessa Battistini, Katia Souza, Ricardo Almeida")
	assert.NotContains(t, msg, "Paulo")

	short := clarifyProfessional("Dra. Ana", testDirectory)
	assert.True(t, strings.Contains(short, "Vanessa Battistini, Katia Souza"))
}
