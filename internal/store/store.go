// Package store provides storage backends for TrainPipe.
//
// Two backends implement the same Store interface: PostgreSQL for
// deployments and SQLite for single-host installs and tests. Both run their
// schema migrations on open.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/vbtlab/trainpipe/internal/models"
)

// Store is the durable persistence surface consumed by the webhook
// dispatcher, the state machine engine and the import pipeline.
//
// Lookup methods return (nil, nil) when no row matches, so callers can
// distinguish "absent" from a real error. InsertDetails is the only
// multi-statement operation; it commits the whole batch in one transaction
// and rolls back wholesale on any failure.
type Store interface {
	// GetUserByPhone resolves a user by the stable external contact id.
	GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
	// CreateUser inserts a new user and fills ID and timestamps. An empty
	// State defaults to models.StateIdle.
	CreateUser(ctx context.Context, u *models.User) error
	// UpdateUserState persists a state transition for the user row.
	UpdateUserState(ctx context.Context, userID int64, state models.StateType) error

	// LatestSessionSince returns the user's most recent training session
	// created at or after the given instant.
	LatestSessionSince(ctx context.Context, userID int64, since time.Time) (*models.TrainingSession, error)
	// CreateSession inserts a new training session and fills ID and timestamps.
	CreateSession(ctx context.Context, s *models.TrainingSession) error

	// UpsertExercise resolves an exercise id by name, creating it on first
	// reference.
	UpsertExercise(ctx context.Context, name string) (int64, error)

	// SessionDetailHashes returns the content-hash set of all details already
	// persisted for the (athlete, session) pair.
	SessionDetailHashes(ctx context.Context, userID, sessionID int64) (map[string]struct{}, error)
	// InsertDetails inserts the batch atomically: every row or none.
	InsertDetails(ctx context.Context, details []models.TrainingDetail) error

	// SaveUserStat upserts the per-(user, exercise) equation document.
	SaveUserStat(ctx context.Context, stat models.UserStat) error
	// GetUserStat fetches the equation document, or (nil, nil) when unset.
	GetUserStat(ctx context.Context, userID, exerciseID int64) (*models.UserStat, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Anything that is
// not recognizably a PostgreSQL connection string is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
