// SQLite-backed Store implementation, used for single-host installs and in
// tests.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vbtlab/trainpipe/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; the parent directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "db_path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone_number = ?`, phoneNumber)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByPhone failed", "error", err, "phone_number", phoneNumber)
		return nil, fmt.Errorf("failed to query user %s: %w", phoneNumber, err)
	}
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	now := touch()
	u.State = defaultedState(u.State)
	u.CreatedAt = now
	u.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (phone_number, state, name, surname, alias, email, gender, height, initial_weight, date_of_birth, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.PhoneNumber, u.State, nilIfEmpty(u.Name), nilIfEmpty(u.Surname), nilIfEmpty(u.Alias),
		nilIfEmpty(u.Email), nilIfEmpty(u.Gender), nullFloat(u.Height), nullFloat(u.InitialWeight),
		u.DateOfBirth, now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "phone_number", u.PhoneNumber)
		return fmt.Errorf("failed to insert user %s: %w", u.PhoneNumber, err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "user_id", u.ID, "state", u.State)
	return nil
}

func (s *SQLiteStore) UpdateUserState(ctx context.Context, userID int64, state models.StateType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET state = ?, updated_at = ? WHERE id = ?`, state, touch(), userID)
	if err != nil {
		slog.Error("SQLiteStore UpdateUserState failed", "error", err, "user_id", userID, "state", state)
		return fmt.Errorf("failed to update state for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check state update for user %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("no user row with id %d", userID)
	}
	slog.Debug("SQLiteStore UpdateUserState succeeded", "user_id", userID, "state", state)
	return nil
}

func (s *SQLiteStore) LatestSessionSince(ctx context.Context, userID int64, since time.Time) (*models.TrainingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, notes, created_at, updated_at FROM training_sessions
		 WHERE user_id = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 1`, userID, since)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LatestSessionSince failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query sessions for user %d: %w", userID, err)
	}
	return sess, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.TrainingSession) error {
	now := touch()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO training_sessions (user_id, notes, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.UserID, nilIfEmpty(sess.Notes), now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "user_id", sess.UserID)
		return fmt.Errorf("failed to insert session for user %d: %w", sess.UserID, err)
	}
	sess.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new session id: %w", err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "session_id", sess.ID, "user_id", sess.UserID)
	return nil
}

func (s *SQLiteStore) UpsertExercise(ctx context.Context, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		slog.Error("SQLiteStore UpsertExercise insert failed", "error", err, "name", name)
		return 0, fmt.Errorf("failed to upsert exercise %q: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM exercises WHERE name = ?`, name).Scan(&id); err != nil {
		slog.Error("SQLiteStore UpsertExercise lookup failed", "error", err, "name", name)
		return 0, fmt.Errorf("failed to resolve exercise %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLiteStore) SessionDetailHashes(ctx context.Context, userID, sessionID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash_id FROM training_details WHERE atleta_id = ? AND session_id = ? AND hash_id IS NOT NULL`,
		userID, sessionID)
	if err != nil {
		slog.Error("SQLiteStore SessionDetailHashes query failed", "error", err, "user_id", userID, "session_id", sessionID)
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
	slog.Debug("SQLiteStore SessionDetailHashes succeeded", "count", len(hashes), "session_id", sessionID)
	return hashes, nil
}

func (s *SQLiteStore) InsertDetails(ctx context.Context, details []models.TrainingDetail) error {
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
		res, err := tx.ExecContext(ctx,
			`INSERT INTO training_details (session_id, atleta_id, ejercicio_id, timestamp, serie, rep, kg, d, vm, vmp, rm, p_w, hash_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.SessionID, d.AthleteID, d.ExerciseID, d.Timestamp, d.Serie, d.Rep, d.Kg,
			nullFloat(d.D), nullFloat(d.VM), nullFloat(d.VMP), nullFloat(d.RM), nullFloat(d.PW),
			nilIfEmpty(d.HashID), now, now,
		)
		if err != nil {
			tx.Rollback()
			slog.Error("SQLiteStore InsertDetails failed, batch rolled back", "error", err, "hash_id", d.HashID)
			return fmt.Errorf("failed to insert detail %s: %w", d.HashID, err)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to read new detail id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit detail batch: %w", err)
	}
	slog.Debug("SQLiteStore InsertDetails committed", "count", len(details))
	return nil
}

func (s *SQLiteStore) SaveUserStat(ctx context.Context, stat models.UserStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, exercise_id, ecuacion) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, exercise_id) DO UPDATE SET ecuacion = excluded.ecuacion`,
		stat.UserID, stat.ExerciseID, stat.Equation)
	if err != nil {
		slog.Error("SQLiteStore SaveUserStat failed", "error", err, "user_id", stat.UserID, "exercise_id", stat.ExerciseID)
		return fmt.Errorf("failed to save user stat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserStat(ctx context.Context, userID, exerciseID int64) (*models.UserStat, error) {
	stat := models.UserStat{UserID: userID, ExerciseID: exerciseID}
	err := s.db.QueryRowContext(ctx,
		`SELECT ecuacion FROM user_stats WHERE user_id = ? AND exercise_id = ?`,
		userID, exerciseID).Scan(&stat.Equation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user stat: %w", err)
	}
	return &stat, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
