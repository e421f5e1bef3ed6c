package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxTextRunes is the Send API limit for message.text, counted in code points.
	MaxTextRunes = 2000

	// previewRunes is how much of a message is echoed into logs.
	previewRunes = 50
)

// MessagingType and Tag values used for one-time-notification follow-ups.
const (
	MessagingTypeMessageTag = "MESSAGE_TAG"
	TagOneTimeNotification  = "ONE_TIME_NOTIFICATION"
)

// MessageRequest is a single text message to relay to Messenger.
type MessageRequest struct {
	Content        string
	RecipientToken string // One-time-notification token; empty means use the PSID
}

// AddressKind tells which recipient field the Send API receives.
type AddressKind string

const (
	AddressByID           AddressKind = "id"
	AddressByOneTimeToken AddressKind = "one_time_notif_token"
)

// RecipientAddress is either a persistent PSID or an OTN token, never both.
type RecipientAddress struct {
	Kind  AddressKind
	Value string
}

// ByID addresses a recipient by page-scoped user id.
func ByID(psid string) RecipientAddress {
	return RecipientAddress{Kind: AddressByID, Value: psid}
}

// ByOneTimeToken addresses a recipient by a one-time-notification token.
func ByOneTimeToken(token string) RecipientAddress {
	return RecipientAddress{Kind: AddressByOneTimeToken, Value: token}
}

// ResolveRecipient picks the addressing mode for a send. A token always wins
// over the persistent id.
func ResolveRecipient(psid, token string) (RecipientAddress, error) {
	switch {
	case token != "":
		return ByOneTimeToken(token), nil
	case psid != "":
		return ByID(psid), nil
	default:
		return RecipientAddress{}, ErrNoRecipient
	}
}

// Recipient is the wire form of RecipientAddress.
type Recipient struct {
	ID                string `json:"id,omitempty"`
	OneTimeNotifToken string `json:"one_time_notif_token,omitempty"`
}

// MessageBody is the "message" object of a Send API request.
type MessageBody struct {
	Text string `json:"text"`
}

// OutboundPayload is the JSON body posted to the Send API.
type OutboundPayload struct {
	Recipient     Recipient   `json:"recipient"`
	Message       MessageBody `json:"message"`
	MessagingType string      `json:"messaging_type,omitempty"`
	Tag           string      `json:"tag,omitempty"`
}

// BuildPayload shapes the Send API body. The text is truncated before the
// payload is built; tag fields are set only for OTN recipients.
func BuildPayload(addr RecipientAddress, text string) OutboundPayload {
	p := OutboundPayload{
		Message: MessageBody{Text: Truncate(text, MaxTextRunes)},
	}

	switch addr.Kind {
	case AddressByOneTimeToken:
		p.Recipient.OneTimeNotifToken = addr.Value
		p.MessagingType = MessagingTypeMessageTag
		p.Tag = TagOneTimeNotification
	default:
		p.Recipient.ID = addr.Value
	}
	return p
}

// Address reports which addressing mode the payload uses.
func (p OutboundPayload) Address() RecipientAddress {
	if p.Recipient.OneTimeNotifToken != "" {
		return ByOneTimeToken(p.Recipient.OneTimeNotifToken)
	}
	return ByID(p.Recipient.ID)
}

// Truncate returns at most n code points of s, never splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Preview is the short form of a message used in log lines.
func Preview(s string) string {
	p := Truncate(s, previewRunes)
	if len(p) < len(s) {
		return p + "..."
	}
	return p
}

// Notification is a text relay job queued by the glue handlers and delivered
// asynchronously by the relay worker.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Token     string    `json:"one_time_notif_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification creates a Notification with a generated ID.
func NewNotification(content string) Notification {
	return Notification{
		ID:        uuid.New(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Request converts the job into a delivery request.
func (n Notification) Request() MessageRequest {
	return MessageRequest{Content: n.Content, RecipientToken: n.Token}
}
