package clinic

import (
	"fmt"
	"strings"
	"time"
)

// staticTokenMaxLen is the length under which a configured client secret is
// treated as a long-lived API token rather than an OAuth secret.
const staticTokenMaxLen = 100

// MockClientID switches the scheduling adapter into canned-data mode.
const MockClientID = "mock"

// ClinicorpCredentials holds a tenant's scheduling API credentials.
type ClinicorpCredentials struct {
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	APIToken     string    `json:"api_token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	SubscriberID string    `json:"subscriber_id,omitempty"`
	CodeLink     string    `json:"code_link,omitempty"`
	BaseURL      string    `json:"base_url,omitempty"`
	AuthURL      string    `json:"auth_url,omitempty"`
	Mock         bool      `json:"mock,omitempty"`
}

// StaticToken returns the long-lived token to use, if any. An explicit
// api_token wins; otherwise a short client secret is taken as the token.
func (c ClinicorpCredentials) StaticToken() string {
	if token := strings.TrimSpace(c.APIToken); token != "" {
		return token
	}
	secret := strings.TrimSpace(c.ClientSecret)
	if secret != "" && len(secret) < staticTokenMaxLen {
		return secret
	}
	return ""
}

// IsMock reports whether the adapter should serve canned data.
func (c ClinicorpCredentials) IsMock() bool {
	return c.Mock || strings.EqualFold(strings.TrimSpace(c.ClientID), MockClientID)
}

// Configured reports whether enough is set to talk to the API at all.
func (c ClinicorpCredentials) Configured() bool {
	return c.IsMock() || c.StaticToken() != "" || c.RefreshToken != "" || c.AccessToken != ""
}

// AIPersona customizes how the assistant introduces itself.
type AIPersona struct {
	AssistantName     string `json:"assistant_name"`
	Tone              string `json:"tone,omitempty"`
	ExtraInstructions string `json:"extra_instructions,omitempty"`
}

// Config is the per-tenant clinic configuration.
type Config struct {
	TenantID         string               `json:"tenant_id"`
	Name             string               `json:"name"`
	Timezone         string               `json:"timezone"`
	Persona          AIPersona            `json:"persona"`
	Clinicorp        ClinicorpCredentials `json:"clinicorp"`
	EscalationEmails []string             `json:"escalation_emails,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at,omitempty"`
}

// DefaultConfig returns a usable config for a tenant with nothing stored.
func DefaultConfig(tenantID string) *Config {
	return &Config{
		TenantID: tenantID,
		Name:     "Bem-Querer Odontologia",
		Timezone: "America/Sao_Paulo",
		Persona: AIPersona{
			AssistantName: "Carol",
			Tone:          "acolhedor e profissional",
		},
	}
}

// Location resolves the clinic timezone, falling back to São Paulo.
func (c *Config) Location() *time.Location {
	if c != nil && c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}

// Redacted returns a copy safe to return from admin endpoints.
func (c *Config) Redacted() *Config {
	copied := *c
	copied.Clinicorp.ClientSecret = mask(c.Clinicorp.ClientSecret)
	copied.Clinicorp.APIToken = mask(c.Clinicorp.APIToken)
	copied.Clinicorp.AccessToken = mask(c.Clinicorp.AccessToken)
	copied.Clinicorp.RefreshToken = mask(c.Clinicorp.RefreshToken)
	copied.EscalationEmails = append([]string(nil), c.EscalationEmails...)
	return &copied
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return fmt.Sprintf("****%s", secret[len(secret)-4:])
}
