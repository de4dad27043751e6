// Package main runs end-to-end scenarios against a running concierge API.
//
// Each scenario posts UazAPI webhook payloads and polls the tenant inbox
// endpoints until the expected conversation state appears. The API should run
// with CLINICORP_FORCE_MOCK=true so availability answers are deterministic.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 E2E_INSTANCE=clinic-a E2E_TENANT=tenant-a go run scripts/e2e/run_e2e.go
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go source-classification
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	maxWait      = 45 * time.Second
	pollInterval = 2 * time.Second
)

var (
	apiBase  string
	instance string
	tenantID string
	token    string
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// freshPhone keeps scenarios independent without a purge endpoint.
func freshPhone() string {
	return fmt.Sprintf("55119%08d", time.Now().UnixNano()%100000000)
}

type inboundMessage struct {
	phone  string
	id     string
	text   string
	fromMe bool
}

func postWebhook(event string, msgs ...inboundMessage) (map[string]interface{}, error) {
	items := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, map[string]interface{}{
			"key": map[string]interface{}{
				"remoteJid": m.phone + "@s.whatsapp.net",
				"fromMe":    m.fromMe,
				"id":        m.id,
			},
			"pushName":         "E2E",
			"messageTimestamp": time.Now().Unix(),
			"message":          map[string]string{"conversation": m.text},
		})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"event":    event,
		"instance": instance,
		"data":     map[string]interface{}{"messages": items},
	})
	resp, err := http.Post(apiBase+"/webhooks/whatsapp", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var ack map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, err
	}
	return ack, nil
}

func getJSON(path string, out interface{}) error {
	req, _ := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type conversationRow struct {
	ID     string `json:"id"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

type messageRow struct {
	Direction string `json:"direction"`
	Content   string `json:"content"`
}

func findConversation(phone string) (*conversationRow, error) {
	var body struct {
		Conversations []conversationRow `json:"conversations"`
	}
	if err := getJSON("/tenants/"+tenantID+"/conversations", &body); err != nil {
		return nil, err
	}
	for i := range body.Conversations {
		if body.Conversations[i].Phone == phone {
			return &body.Conversations[i], nil
		}
	}
	return nil, nil
}

func listMessages(conversationID string) ([]messageRow, error) {
	var body struct {
		Messages []messageRow `json:"messages"`
	}
	if err := getJSON("/tenants/"+tenantID+"/conversations/"+conversationID+"/messages", &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// waitForMessages polls until the phone's open conversation holds at least
// minCount messages.
func waitForMessages(phone string, minCount int) ([]messageRow, error) {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		conv, err := findConversation(phone)
		if err != nil || conv == nil {
			continue
		}
		msgs, err := listMessages(conv.ID)
		if err == nil && len(msgs) >= minCount {
			return msgs, nil
		}
	}
	return nil, fmt.Errorf("timed out waiting for %d messages for %s", minCount, phone)
}

func lastOutbound(msgs []messageRow) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == "outbound" {
			return msgs[i].Content
		}
	}
	return ""
}

func countDirection(msgs []messageRow, direction string) int {
	n := 0
	for _, m := range msgs {
		if m.Direction == direction {
			n++
		}
	}
	return n
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func scenarioGreeting(t *T) {
	phone := freshPhone()
	ack, err := postWebhook("messages.upsert", inboundMessage{phone: phone, id: "e2e-" + phone, text: "Oi, bom dia!"})
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("upsert acknowledged", ack["status"] == "upsert_processed")
	msgs, err := waitForMessages(phone, 2)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("one inbound and one outbound", countDirection(msgs, "inbound") == 1 && countDirection(msgs, "outbound") == 1)
	t.check("reply is not empty", strings.TrimSpace(lastOutbound(msgs)) != "")
}

func scenarioAvailability(t *T) {
	phone := freshPhone()
	if _, err := postWebhook("messages.upsert", inboundMessage{phone: phone, id: "e2e-" + phone, text: "Tem horário amanhã de manhã com a Dra. Vanessa?"}); err != nil {
		t.fatalf("%v", err)
		return
	}
	msgs, err := waitForMessages(phone, 2)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	reply := lastOutbound(msgs)
	t.check("reply mentions a time", containsAny(reply, ":00", ":30", "h"))
	t.check("reply is short enough for whatsapp", len(reply) < 1200)
}

func scenarioFromMeIgnored(t *T) {
	phone := freshPhone()
	ack, err := postWebhook("messages.upsert", inboundMessage{phone: phone, id: "e2e-out-" + phone, text: "Olá!", fromMe: true})
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("nothing scheduled", ack["scheduled"] == float64(0))
	time.Sleep(3 * pollInterval)
	conv, err := findConversation(phone)
	t.check("no conversation created", err == nil && conv == nil)
}

func scenarioReplayIsIdempotent(t *T) {
	phone := freshPhone()
	msg := inboundMessage{phone: phone, id: "e2e-dup-" + phone, text: "quero agendar uma limpeza"}
	if _, err := postWebhook("messages.upsert", msg); err != nil {
		t.fatalf("%v", err)
		return
	}
	if _, err := waitForMessages(phone, 2); err != nil {
		t.fatalf("%v", err)
		return
	}
	if _, err := postWebhook("messaging-history.set", msg); err != nil {
		t.fatalf("%v", err)
		return
	}
	time.Sleep(3 * pollInterval)
	conv, _ := findConversation(phone)
	if conv == nil {
		t.fatalf("conversation disappeared")
		return
	}
	msgs, err := listMessages(conv.ID)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("replayed message stored once", countDirection(msgs, "inbound") == 1)
	t.check("replayed message answered once", countDirection(msgs, "outbound") == 1)
}

func scenarioSourceClassification(t *T) {
	phone := freshPhone()
	if _, err := postWebhook("messages.upsert", inboundMessage{phone: phone, id: "e2e-" + phone, text: "vi no google e quero agendar"}); err != nil {
		t.fatalf("%v", err)
		return
	}
	if _, err := waitForMessages(phone, 1); err != nil {
		t.fatalf("%v", err)
		return
	}
	var body struct {
		Contacts []struct {
			Phone             string `json:"phone"`
			AcquisitionSource string `json:"acquisition_source"`
		} `json:"contacts"`
	}
	if err := getJSON("/tenants/"+tenantID+"/contacts?limit=100", &body); err != nil {
		t.fatalf("%v", err)
		return
	}
	source := ""
	for _, c := range body.Contacts {
		if c.Phone == phone {
			source = c.AcquisitionSource
		}
	}
	t.check("contact classified as google_ads", source == "google_ads")
}

func mintToken(secret, tenant string) (string, error) {
	if secret == "" {
		return "", nil
	}
	claims := jwt.MapClaims{
		"sub":       "e2e",
		"tenant_id": tenant,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	apiBase = strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/")
	instance = envOr("E2E_INSTANCE", "clinic-a")
	tenantID = envOr("E2E_TENANT", "tenant-a")
	var err error
	token, err = mintToken(os.Getenv("ADMIN_JWT_SECRET"), tenantID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: mint admin token:", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{"greeting", scenarioGreeting},
		{"availability", scenarioAvailability},
		{"from-me-ignored", scenarioFromMeIgnored},
		{"replay-idempotent", scenarioReplayIsIdempotent},
		{"source-classification", scenarioSourceClassification},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	var results []string
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)
		totalPassed += t.passed
		totalFailed += t.failed

		status := "ok"
		if t.failed > 0 {
			status = "FAILED"
		}
		results = append(results, fmt.Sprintf("  %-6s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\nSUMMARY\n========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
