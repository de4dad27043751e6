package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// JID suffixes used by the gateway.
const (
	userJIDSuffix      = "@s.whatsapp.net"
	legacyUserSuffix   = "@c.us"
	groupJIDSuffix     = "@g.us"
	broadcastJID       = "status@broadcast"
	broadcastJIDSuffix = "@broadcast"
)

// PhoneFromJID returns the digits of a one-to-one chat JID. Group chats and
// broadcast lists report ok=false.
func PhoneFromJID(jid string) (phone string, ok bool) {
	jid = strings.TrimSpace(strings.ToLower(jid))
	if jid == "" || jid == broadcastJID ||
		strings.HasSuffix(jid, groupJIDSuffix) || strings.HasSuffix(jid, broadcastJIDSuffix) {
		return "", false
	}
	jid = strings.TrimSuffix(jid, userJIDSuffix)
	jid = strings.TrimSuffix(jid, legacyUserSuffix)
	// Multi-device JIDs carry a ":device" suffix on the user part.
	if i := strings.IndexAny(jid, ":@"); i >= 0 {
		jid = jid[:i]
	}
	phone = sanitizePhone(jid)
	return phone, phone != ""
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
