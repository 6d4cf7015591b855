// Package flow implements the per-user conversation state machine.
//
// Each user carries exactly one persisted state tag. Handlers are pure with
// respect to that tag: they receive the loaded user, do their messaging and
// import work, and report a transition signal. The engine owns reading the
// tag, resolving the handler, applying the transition table and writing the
// new tag back, all under a per-user lock so concurrent webhook deliveries
// for the same user serialize.
package flow

import (
	"fmt"
	"strings"

	"github.com/vbtlab/trainpipe/internal/models"
)

// endKeyword closes a live session when it appears anywhere in a text
// message, case-insensitive.
const endKeyword = "finitto"

// UnknownStateError reports a persisted state tag with no registered
// handler. It is a deployment-level fault: the event must not be routed to
// some default handler, it has to surface.
type UnknownStateError struct {
	State models.StateType
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("no handler registered for state %q", e.State)
}

// Event is one normalized inbound message, extracted from a validated
// webhook payload.
type Event struct {
	From        string // sender wa_id / phone number
	ProfileName string
	MessageID   string
	Kind        models.MessageType
	Text        string
	ListReply   *models.ListReply
	Document    *models.DocumentContent
}

// NewEvent normalizes a validated message payload into an Event.
func NewEvent(p *models.WebhookPayload) (Event, error) {
	msg := p.FirstMessage()
	if msg == nil {
		return Event{}, fmt.Errorf("payload carries no message")
	}
	name, waID, err := p.ContactInfo()
	if err != nil {
		return Event{}, err
	}
	evt := Event{
		From:        waID,
		ProfileName: name,
		MessageID:   msg.ID,
		Kind:        msg.Type,
	}
	switch msg.Type {
	case models.MessageTypeText:
		evt.Text = msg.Text.Body
	case models.MessageTypeDocument:
		evt.Document = msg.Document
	case models.MessageTypeInteractive:
		evt.ListReply = msg.Interactive.ListReply
	}
	return evt, nil
}

// isEndKeyword reports whether a text message closes the session.
func isEndKeyword(text string) bool {
	return strings.Contains(strings.ToLower(text), endKeyword)
}

// nextState applies the transition table. A signal with no row for the
// current state leaves the state unchanged.
func nextState(current models.StateType, signal models.TransitionSignal) models.StateType {
	switch {
	case current == models.StateIdle && signal == models.SignalTrainingSelected:
		return models.StateTrainingManagement
	case current == models.StateTrainingManagement && signal == models.SignalAddTraining:
		return models.StateAddTraining
	case current == models.StateTrainingManagement && signal == models.SignalEnd:
		return models.StateIdle
	case current == models.StateAddTraining && signal == models.SignalEnd:
		return models.StateIdle
	default:
		return current
	}
}
