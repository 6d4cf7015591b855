// Package models defines the core data structures for TrainPipe.
//
// It includes the persisted entities (users, training sessions, training
// details, exercises), the conversation state enum, and the typed transition
// signals handlers return to the state machine engine.
package models

import (
	"errors"
	"time"
)

// StateType identifies a conversation state. The value is persisted verbatim
// in the users table, so renaming a constant is a schema migration.
type StateType string

const (
	// StateIdle is the terminal-safe resting state every user starts in.
	StateIdle StateType = "Idle"
	// StateTrainingManagement is entered after the user picks the training
	// option from the main menu list.
	StateTrainingManagement StateType = "TrainingManagement"
	// StateAddTraining is the document-collection state for ADR imports.
	StateAddTraining StateType = "AddTraining"
	// StateEstimateOneRM is reserved. No transition produces it and the
	// engine refuses to resolve a handler for it.
	StateEstimateOneRM StateType = "EstimateOneRM"
)

// IsLiveState reports whether the state is reachable through the transition
// table. StateEstimateOneRM is declared but deliberately not live.
func IsLiveState(s StateType) bool {
	switch s {
	case StateIdle, StateTrainingManagement, StateAddTraining:
		return true
	default:
		return false
	}
}

// TransitionSignal is returned by state handlers to request a transition.
// The engine consumes it with an exhaustive switch; handlers never mutate
// user state themselves.
type TransitionSignal int

const (
	// SignalNone requests no transition.
	SignalNone TransitionSignal = iota
	// SignalTrainingSelected moves Idle -> TrainingManagement.
	SignalTrainingSelected
	// SignalAddTraining moves TrainingManagement -> AddTraining.
	SignalAddTraining
	// SignalEnd moves any non-idle state back to Idle.
	SignalEnd
)

func (s TransitionSignal) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalTrainingSelected:
		return "training_selected"
	case SignalAddTraining:
		return "add_training"
	case SignalEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Validation error variables shared across packages.
var (
	ErrEmptyPhoneNumber = errors.New("phone number cannot be empty")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrEmptyListRows    = errors.New("interactive list requires at least one row")
)

// User is the per-contact identity. PhoneNumber is the stable external
// contact id (WhatsApp wa_id); State is the sole persisted pointer into the
// state machine. Users are created lazily on first inbound event.
type User struct {
	ID            int64      `json:"id"`
	PhoneNumber   string     `json:"phone_number"`
	Name          string     `json:"name,omitempty"`
	Surname       string     `json:"surname,omitempty"`
	Alias         string     `json:"alias,omitempty"`
	Email         string     `json:"email,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	Height        *float64   `json:"height,omitempty"`
	InitialWeight *float64   `json:"initial_weight,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	State         StateType  `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks the fields required before a user row can be created.
func (u *User) Validate() error {
	if u.PhoneNumber == "" {
		return ErrEmptyPhoneNumber
	}
	return nil
}

// TrainingSession groups the details logged within one gym visit. Sessions
// carry no open/closed flag: freshness is computed from CreatedAt at read
// time (see the 3-hour window in the ingest package).
type TrainingSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrainingDetail is one logged repetition. HashID is the deterministic
// content hash over the semantic columns used for duplicate-import detection;
// two details with equal HashID are the same logical observation.
type TrainingDetail struct {
	ID         int64     `json:"id"`
	SessionID  int64     `json:"session_id"`
	AthleteID  int64     `json:"athlete_id"`
	ExerciseID int64     `json:"exercise_id"`
	Timestamp  time.Time `json:"timestamp"`
	Serie      int       `json:"serie"`
	Rep        int       `json:"rep"`
	Kg         float64   `json:"kg"`
	D          *float64  `json:"d,omitempty"`
	VM         *float64  `json:"vm,omitempty"`
	VMP        *float64  `json:"vmp,omitempty"`
	RM         *float64  `json:"rm,omitempty"`
	PW         *float64  `json:"p_w,omitempty"`
	HashID     string    `json:"hash_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Exercise is a name-keyed lookup entity with upsert-by-name semantics, kept
// as a stable foreign key surface for stats aggregation.
type Exercise struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserStat holds the per-(user, exercise) load-velocity equation as raw JSON.
// Composite primary key (UserID, ExerciseID).
type UserStat struct {
	UserID     int64  `json:"user_id"`
	ExerciseID int64  `json:"exercise_id"`
	Equation   string `json:"equation"` // JSON document
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the uniform JSON body returned by the webhook endpoints.
// The upstream platform only inspects the HTTP status code, but a consistent
// body keeps manual testing sane.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success creates a successful API response.
func Success() APIResponse {
	return APIResponse{Status: string(APIStatusOK)}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
