// PostgreSQL-backed Store implementation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/vbtlab/trainpipe/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phoneNumber)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByPhone failed", "error", err, "phone_number", phoneNumber)
		return nil, fmt.Errorf("failed to query user %s: %w", phoneNumber, err)
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	now := touch()
	u.State = defaultedState(u.State)
	u.CreatedAt = now
	u.UpdatedAt = now
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (phone_number, state, name, surname, alias, email, gender, height, initial_weight, date_of_birth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		u.PhoneNumber, u.State, nilIfEmpty(u.Name), nilIfEmpty(u.Surname), nilIfEmpty(u.Alias),
		nilIfEmpty(u.Email), nilIfEmpty(u.Gender), nullFloat(u.Height), nullFloat(u.InitialWeight),
		u.DateOfBirth, now, now,
	).Scan(&u.ID)
	if err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "phone_number", u.PhoneNumber)
		return fmt.Errorf("failed to insert user %s: %w", u.PhoneNumber, err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "user_id", u.ID, "state", u.State)
	return nil
}

func (s *PostgresStore) UpdateUserState(ctx context.Context, userID int64, state models.StateType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET state = $1, updated_at = $2 WHERE id = $3`, state, touch(), userID)
	if err != nil {
		slog.Error("PostgresStore UpdateUserState failed", "error", err, "user_id", userID, "state", state)
		return fmt.Errorf("failed to update state for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check state update for user %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("no user row with id %d", userID)
	}
	slog.Debug("PostgresStore UpdateUserState succeeded", "user_id", userID, "state", state)
	return nil
}

func (s *PostgresStore) LatestSessionSince(ctx context.Context, userID int64, since time.Time) (*models.TrainingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, notes, created_at, updated_at FROM training_sessions
		 WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT 1`, userID, since)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LatestSessionSince failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query sessions for user %d: %w", userID, err)
	}
	return sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.TrainingSession) error {
	now := touch()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO training_sessions (user_id, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		sess.UserID, nilIfEmpty(sess.Notes), now, now,
	).Scan(&sess.ID)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "user_id", sess.UserID)
		return fmt.Errorf("failed to insert session for user %d: %w", sess.UserID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "session_id", sess.ID, "user_id", sess.UserID)
	return nil
}

func (s *PostgresStore) UpsertExercise(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO exercises (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore UpsertExercise failed", "error", err, "name", name)
		return 0, fmt.Errorf("failed to upsert exercise %q: %w", name, err)
	}
	return id, nil
}

func (s *PostgresStore) SessionDetailHashes(ctx context.Context, userID, sessionID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash_id FROM training_details WHERE atleta_id = $1 AND session_id = $2 AND hash_id IS NOT NULL`,
		userID, sessionID)
	if err != nil {
		slog.Error("PostgresStore SessionDetailHashes query failed", "error", err, "user_id", userID, "session_id", sessionID)
		return nil, fmt.Errorf("failed to query detail hashes: %w", err)
	}
	defer rows.Close()
	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan detail hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detail hashes: %w", err)
	}
	slog.Debug("PostgresStore SessionDetailHashes succeeded", "count", len(hashes), "session_id", sessionID)
	return hashes, nil
}

func (s *PostgresStore) InsertDetails(ctx context.Context, details []models.TrainingDetail) error {
	if len(details) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin detail batch transaction: %w", err)
	}
	now := touch()
	for i := range details {
		d := &details[i]
		d.CreatedAt = now
		d.UpdatedAt = now
		err := tx.QueryRowContext(ctx,
			`INSERT INTO training_details (session_id, atleta_id, ejercicio_id, timestamp, serie, rep, kg, d, vm, vmp, rm, p_w, hash_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
			d.SessionID, d.AthleteID, d.ExerciseID, d.Timestamp, d.Serie, d.Rep, d.Kg,
			nullFloat(d.D), nullFloat(d.VM), nullFloat(d.VMP), nullFloat(d.RM), nullFloat(d.PW),
			nilIfEmpty(d.HashID), now, now,
		).Scan(&d.ID)
		if err != nil {
			tx.Rollback()
			slog.Error("PostgresStore InsertDetails failed, batch rolled back", "error", err, "hash_id", d.HashID)
			return fmt.Errorf("failed to insert detail %s: %w", d.HashID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit detail batch: %w", err)
	}
	slog.Debug("PostgresStore InsertDetails committed", "count", len(details))
	return nil
}

func (s *PostgresStore) SaveUserStat(ctx context.Context, stat models.UserStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, exercise_id, ecuacion) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, exercise_id) DO UPDATE SET ecuacion = EXCLUDED.ecuacion`,
		stat.UserID, stat.ExerciseID, stat.Equation)
	if err != nil {
		slog.Error("PostgresStore SaveUserStat failed", "error", err, "user_id", stat.UserID, "exercise_id", stat.ExerciseID)
		return fmt.Errorf("failed to save user stat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserStat(ctx context.Context, userID, exerciseID int64) (*models.UserStat, error) {
	stat := models.UserStat{UserID: userID, ExerciseID: exerciseID}
	err := s.db.QueryRowContext(ctx,
		`SELECT ecuacion FROM user_stats WHERE user_id = $1 AND exercise_id = $2`,
		userID, exerciseID).Scan(&stat.Equation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user stat: %w", err)
	}
	return &stat, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
