// Outbound message payloads for the WhatsApp Cloud API messages endpoint.
//
// Three shapes are used: plain text, interactive list, and document. The
// builders pin the constant envelope fields so callers only supply content.

package models

// Outbound payload type discriminants.
const (
	SendTypeText        = "text"
	SendTypeInteractive = "interactive"
	SendTypeDocument    = "document"

	sendMessagingProduct = "whatsapp"
	sendRecipientType    = "individual"
)

// SendPayload is the JSON body posted to /{phone-number-id}/messages.
type SendPayload struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *SendText        `json:"text,omitempty"`
	Interactive      *SendInteractive `json:"interactive,omitempty"`
	Document         *SendDocument    `json:"document,omitempty"`
}

// SendText is the text payload variant.
type SendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendDocument references an uploaded media id to forward to the user.
type SendDocument struct {
	MediaID  string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// SendInteractive is the interactive list payload variant.
type SendInteractive struct {
	Type   string             `json:"type"` // always "list"
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   InteractiveBody    `json:"body"`
	Footer *InteractiveFooter `json:"footer,omitempty"`
	Action InteractiveAction  `json:"action"`
}

// InteractiveHeader is the list header line.
type InteractiveHeader struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// InteractiveBody is the list body text.
type InteractiveBody struct {
	Text string `json:"text"`
}

// InteractiveFooter is the list footer line.
type InteractiveFooter struct {
	Text string `json:"text"`
}

// InteractiveAction holds the button label and the selectable sections.
type InteractiveAction struct {
	Button   string               `json:"button"`
	Sections []InteractiveSection `json:"sections"`
}

// InteractiveSection is one titled group of rows.
type InteractiveSection struct {
	Title string           `json:"title"`
	Rows  []InteractiveRow `json:"rows"`
}

// InteractiveRow is one selectable row; ID round-trips in the list reply.
type InteractiveRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// InteractiveList is the transport-independent description of a list message
// consumed by the messaging.Sender contract. Backends that cannot render
// native lists degrade it to numbered text.
type InteractiveList struct {
	Header   string
	Body     string
	Footer   string
	Button   string
	Sections []InteractiveSection
}

// Validate checks that a list carries body text and at least one
// selectable row.
func (l *InteractiveList) Validate() error {
	if l.Body == "" {
		return ErrEmptyBody
	}
	for _, s := range l.Sections {
		if len(s.Rows) > 0 {
			return nil
		}
	}
	return ErrEmptyListRows
}

// NewTextPayload builds a plain text send payload.
func NewTextPayload(to, body string) SendPayload {
	return SendPayload{
		MessagingProduct: sendMessagingProduct,
		RecipientType:    sendRecipientType,
		To:               to,
		Type:             SendTypeText,
		Text:             &SendText{PreviewURL: false, Body: body},
	}
}

// NewListPayload builds an interactive list send payload.
func NewListPayload(to string, list InteractiveList) SendPayload {
	si := &SendInteractive{
		Type:   "list",
		Body:   InteractiveBody{Text: list.Body},
		Action: InteractiveAction{Button: list.Button, Sections: list.Sections},
	}
	if list.Header != "" {
		si.Header = &InteractiveHeader{Type: "text", Text: list.Header}
	}
	if list.Footer != "" {
		si.Footer = &InteractiveFooter{Text: list.Footer}
	}
	return SendPayload{
		MessagingProduct: sendMessagingProduct,
		RecipientType:    sendRecipientType,
		To:               to,
		Type:             SendTypeInteractive,
		Interactive:      si,
	}
}

// NewDocumentPayload builds a document send payload from an uploaded media id.
func NewDocumentPayload(to, mediaID, filename string) SendPayload {
	return SendPayload{
		MessagingProduct: sendMessagingProduct,
		RecipientType:    sendRecipientType,
		To:               to,
		Type:             SendTypeDocument,
		Document:         &SendDocument{MediaID: mediaID, Filename: filename},
	}
}
