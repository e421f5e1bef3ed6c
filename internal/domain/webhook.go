package domain

import (
	"encoding/json"
	"time"
)

// PageObject is the only webhook object the intake accepts.
const PageObject = "page"

// WebhookEnvelope is the top-level body Messenger POSTs to the webhook.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the messaging events of one page.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// Party is a sender or recipient, identified by PSID or page id.
type Party struct {
	ID string `json:"id"`
}

// MessagingEvent is one element of entry[].messaging[].
type MessagingEvent struct {
	Sender    Party            `json:"sender"`
	Recipient Party            `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *IncomingMessage `json:"message,omitempty"`
	OptIn     *OptIn           `json:"optin,omitempty"`
	Postback  json.RawMessage  `json:"postback,omitempty"`
	Delivery  json.RawMessage  `json:"delivery,omitempty"`
	Read      json.RawMessage  `json:"read,omitempty"`
}

// IncomingMessage is a message a user sent to the page.
type IncomingMessage struct {
	MID         string               `json:"mid"`
	Text        string               `json:"text"`
	Attachments []IncomingAttachment `json:"attachments,omitempty"`
}

// IncomingAttachment is a media attachment on an incoming message.
type IncomingAttachment struct {
	Type string `json:"type"`
}

// OptIn is the opt-in event; for OTN it carries the granted token.
type OptIn struct {
	Type              string `json:"type,omitempty"`
	Payload           string `json:"payload,omitempty"`
	OneTimeNotifToken string `json:"one_time_notif_token,omitempty"`
}

// EventKind names what a messaging event carries.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventOptIn   EventKind = "optin"
	EventOther   EventKind = "other"
)

// Kind classifies the event. An opt-in without a token counts as other.
func (e MessagingEvent) Kind() EventKind {
	switch {
	case e.Message != nil:
		return EventMessage
	case e.OptIn != nil && e.OptIn.OneTimeNotifToken != "":
		return EventOptIn
	default:
		return EventOther
	}
}

// Summary is a short description of an incoming message for logs: its text,
// or the type of its first attachment.
func (m *IncomingMessage) Summary() string {
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	if len(m.Attachments) > 0 {
		return m.Attachments[0].Type
	}
	return ""
}

// OptInGrant is a one-time-notification token a user granted. The intake hands
// it to an external store keyed by PSID; callers later pass Token to a send.
type OptInGrant struct {
	PSID       string    `json:"psid"`
	Token      string    `json:"one_time_notif_token"`
	Payload    string    `json:"payload,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewOptInGrant extracts the grant from an opt-in event.
func NewOptInGrant(e MessagingEvent) OptInGrant {
	g := OptInGrant{PSID: e.Sender.ID, ReceivedAt: time.Now().UTC()}
	if e.OptIn != nil {
		g.Token = e.OptIn.OneTimeNotifToken
		g.Payload = e.OptIn.Payload
	}
	return g
}

// SubscriptionMode is the hub.mode value Messenger sends when verifying a webhook.
const SubscriptionMode = "subscribe"

// VerifyOutcome is the result of a webhook GET verification.
type VerifyOutcome int

const (
	VerifyAccepted VerifyOutcome = iota // 200 with the challenge
	VerifyRejected                      // 403
	VerifyMalformed                     // 400, mode or token missing
)
