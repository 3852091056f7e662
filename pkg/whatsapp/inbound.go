package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onurcolak/followup-engine/internal/domain"
)

// evolutionEvent is the "messages.upsert" webhook shape.
type evolutionEvent struct {
	Event string `json:"event"`
	Data  *struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		Message *struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage *struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
	} `json:"data"`
}

// flatEvent is the flat shape used by Z-API style gateways.
type flatEvent struct {
	Phone     string `json:"phone"`
	FromMe    bool   `json:"fromMe"`
	IsGroup   bool   `json:"isGroup"`
	MessageID string `json:"messageId"`
	Text      *struct {
		Message string `json:"message"`
	} `json:"text"`
}

// ParseInbound normalizes a gateway webhook payload. ok is false for payloads
// that are valid JSON but carry no inbound message (status updates, etc).
func ParseInbound(payload []byte) (msg domain.InboundMessage, ok bool, err error) {
	var evo evolutionEvent
	if err := json.Unmarshal(payload, &evo); err != nil {
		return domain.InboundMessage{}, false, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	if evo.Data != nil && evo.Data.Key.RemoteJID != "" {
		if evo.Event != "" && !strings.EqualFold(evo.Event, "messages.upsert") {
			return domain.InboundMessage{}, false, nil
		}

		jid := evo.Data.Key.RemoteJID
		msg = domain.InboundMessage{
			EventID: evo.Data.Key.ID,
			Phone:   NormalizePhone(jid),
			FromMe:  evo.Data.Key.FromMe,
			IsGroup: strings.HasSuffix(jid, "@g.us"),
		}
		if m := evo.Data.Message; m != nil {
			msg.Text = m.Conversation
			if msg.Text == "" && m.ExtendedTextMessage != nil {
				msg.Text = m.ExtendedTextMessage.Text
			}
		}
		return msg, msg.Phone != "", nil
	}

	var flat flatEvent
	if err := json.Unmarshal(payload, &flat); err != nil {
		return domain.InboundMessage{}, false, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if flat.Phone == "" {
		return domain.InboundMessage{}, false, nil
	}

	msg = domain.InboundMessage{
		EventID: flat.MessageID,
		Phone:   NormalizePhone(flat.Phone),
		FromMe:  flat.FromMe,
		IsGroup: flat.IsGroup || strings.HasSuffix(flat.Phone, "-group"),
	}
	if flat.Text != nil {
		msg.Text = flat.Text.Message
	}

	return msg, msg.Phone != "", nil
}

// NormalizePhone keeps only the digits of a phone number or JID user part.
func NormalizePhone(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
