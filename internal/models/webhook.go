// Inbound webhook payload model for the WhatsApp Cloud API.
//
// The envelope is entry -> changes -> value, where value carries either a
// statuses batch or a messages batch, and each message discriminates on its
// "type" field. Parsing is strict: anything outside the known shape set is
// rejected with a path-qualified ValidationError so the dispatcher can
// acknowledge-and-drop instead of retrying.
//
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components

package models

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates inbound message payloads.
type MessageType string

const (
	// MessageTypeText is a plain text message.
	MessageTypeText MessageType = "text"
	// MessageTypeDocument is a media document upload.
	MessageTypeDocument MessageType = "document"
	// MessageTypeInteractive is a reply to an interactive message.
	MessageTypeInteractive MessageType = "interactive"
)

// InteractiveTypeListReply is the only interactive subtype currently handled.
const InteractiveTypeListReply = "list_reply"

// ValidationError reports a structural mismatch in an inbound payload,
// qualified with the JSON path of the offending node.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid webhook payload at %s: %s", e.Path, e.Reason)
}

// WebhookPayload is the top-level webhook envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level notification entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps the changed field and its value. The platform only sends
// field "messages" for the webhooks this service subscribes to.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value is the discriminated container: exactly one of Statuses or Messages
// is populated. The discriminant is key presence, not a tag field.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Metadata identifies the business phone number the event belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Profile carries the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Contact pairs the sender's profile with their WhatsApp id.
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

// Status is one delivery status update (sent/delivered/read/failed).
type Status struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Timestamp    string             `json:"timestamp"`
	RecipientID  string             `json:"recipient_id"`
	Conversation StatusConversation `json:"conversation"`
	Pricing      Pricing            `json:"pricing"`
}

// StatusConversation identifies the billable conversation window.
type StatusConversation struct {
	ID     string                   `json:"id"`
	Origin StatusConversationOrigin `json:"origin"`
}

// StatusConversationOrigin names who opened the conversation window.
type StatusConversationOrigin struct {
	Type string `json:"type"`
}

// Pricing carries the billing category of a status update.
type Pricing struct {
	Billable     bool   `json:"billable"`
	PricingModel string `json:"pricing_model"`
	Category     string `json:"category"`
}

// MessageContext is present when the message replies to an earlier one.
type MessageContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// Message is one inbound message. Exactly one of Text, Document or
// Interactive is populated, matching Type.
type Message struct {
	Context     *MessageContext     `json:"context,omitempty"`
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        MessageType         `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Document    *DocumentContent    `json:"document,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

// DocumentContent describes an uploaded document. MediaID is the handle used
// for the two-step media retrieval against the Cloud API.
type DocumentContent struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	MediaID  string `json:"id"`
}

// InteractiveContent wraps the interactive reply subtype.
type InteractiveContent struct {
	Type      string     `json:"type"`
	ListReply *ListReply `json:"list_reply,omitempty"`
}

// ListReply is the user's selection from a previously sent list message.
type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ParseWebhookPayload parses and validates raw webhook bytes. It returns a
// *ValidationError for malformed JSON, a missing discriminant, an unknown
// message type, or any structural mismatch. Callers must treat that error as
// "not a recognized webhook event", never as a retryable failure.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Path: "$", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// validate walks the envelope and enforces the known shape set. Only the
// first entry / first change / first message is semantically consumed
// downstream, but every present node must still be well-formed.
func (p *WebhookPayload) validate() error {
	if p.Object == "" {
		return &ValidationError{Path: "object", Reason: "missing"}
	}
	if len(p.Entry) == 0 {
		return &ValidationError{Path: "entry", Reason: "empty"}
	}
	for i, e := range p.Entry {
		if len(e.Changes) == 0 {
			return &ValidationError{Path: fmt.Sprintf("entry[%d].changes", i), Reason: "empty"}
		}
		for j, c := range e.Changes {
			path := fmt.Sprintf("entry[%d].changes[%d]", i, j)
			if c.Field != "messages" {
				return &ValidationError{Path: path + ".field", Reason: fmt.Sprintf("unsupported field %q", c.Field)}
			}
			if err := c.Value.validate(path + ".value"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Value) validate(path string) error {
	hasMessages := len(v.Messages) > 0
	hasStatuses := len(v.Statuses) > 0
	switch {
	case hasMessages && hasStatuses:
		return &ValidationError{Path: path, Reason: "both messages and statuses present"}
	case !hasMessages && !hasStatuses:
		return &ValidationError{Path: path, Reason: "neither messages nor statuses present"}
	}
	if hasMessages {
		if len(v.Contacts) == 0 {
			return &ValidationError{Path: path + ".contacts", Reason: "empty"}
		}
		for k := range v.Messages {
			if err := v.Messages[k].validate(fmt.Sprintf("%s.messages[%d]", path, k)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Message) validate(path string) error {
	if m.From == "" {
		return &ValidationError{Path: path + ".from", Reason: "missing"}
	}
	if m.ID == "" {
		return &ValidationError{Path: path + ".id", Reason: "missing"}
	}
	switch m.Type {
	case MessageTypeText:
		if m.Text == nil {
			return &ValidationError{Path: path + ".text", Reason: "missing for type text"}
		}
	case MessageTypeDocument:
		if m.Document == nil {
			return &ValidationError{Path: path + ".document", Reason: "missing for type document"}
		}
	case MessageTypeInteractive:
		if m.Interactive == nil {
			return &ValidationError{Path: path + ".interactive", Reason: "missing for type interactive"}
		}
		if m.Interactive.Type != InteractiveTypeListReply {
			return &ValidationError{Path: path + ".interactive.type", Reason: fmt.Sprintf("unsupported subtype %q", m.Interactive.Type)}
		}
		if m.Interactive.ListReply == nil {
			return &ValidationError{Path: path + ".interactive.list_reply", Reason: "missing"}
		}
	case "":
		return &ValidationError{Path: path + ".type", Reason: "missing discriminant"}
	default:
		return &ValidationError{Path: path + ".type", Reason: fmt.Sprintf("unknown type %q", m.Type)}
	}
	return nil
}

// firstValue returns the first entry's first change value. validate()
// guarantees it exists on any parsed payload.
func (p *WebhookPayload) firstValue() *Value {
	return &p.Entry[0].Changes[0].Value
}

// IsStatus reports whether the payload is a delivery-status batch.
func (p *WebhookPayload) IsStatus() bool {
	return len(p.firstValue().Statuses) > 0
}

// IsMessage reports whether the payload carries inbound messages.
func (p *WebhookPayload) IsMessage() bool {
	return len(p.firstValue().Messages) > 0
}

// FirstMessage returns the first inbound message, or nil for status batches.
func (p *WebhookPayload) FirstMessage() *Message {
	v := p.firstValue()
	if len(v.Messages) == 0 {
		return nil
	}
	return &v.Messages[0]
}

// FirstStatus returns the first status update, or nil for message payloads.
func (p *WebhookPayload) FirstStatus() *Status {
	v := p.firstValue()
	if len(v.Statuses) == 0 {
		return nil
	}
	return &v.Statuses[0]
}

// ContactInfo extracts the sender's display name and contact id. Only valid
// for message payloads.
func (p *WebhookPayload) ContactInfo() (name, waID string, err error) {
	v := p.firstValue()
	if len(v.Contacts) == 0 {
		return "", "", &ValidationError{Path: "entry[0].changes[0].value.contacts", Reason: "not a message payload"}
	}
	c := v.Contacts[0]
	return c.Profile.Name, c.WaID, nil
}

// DisplayPhoneNumber returns the business number the event was delivered to.
func (p *WebhookPayload) DisplayPhoneNumber() string {
	return p.firstValue().Metadata.DisplayPhoneNumber
}

// TextBody returns the body of the first message when it is a text message.
func (p *WebhookPayload) TextBody() (string, bool) {
	m := p.FirstMessage()
	if m == nil || m.Type != MessageTypeText {
		return "", false
	}
	return m.Text.Body, true
}

// DocumentMeta returns the document metadata of the first message when it is
// a document message.
func (p *WebhookPayload) DocumentMeta() (*DocumentContent, bool) {
	m := p.FirstMessage()
	if m == nil || m.Type != MessageTypeDocument {
		return nil, false
	}
	return m.Document, true
}

// ListReplyContent returns the list-reply selection of the first message when
// it is an interactive reply.
func (p *WebhookPayload) ListReplyContent() (*ListReply, bool) {
	m := p.FirstMessage()
	if m == nil || m.Type != MessageTypeInteractive {
		return nil, false
	}
	return m.Interactive.ListReply, true
}
