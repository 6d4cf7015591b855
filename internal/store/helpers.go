package store

import (
	"database/sql"
	"time"

	"github.com/vbtlab/trainpipe/internal/models"
)

// nullFloat converts an optional float for a nullable column parameter.
func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// floatPtr converts a scanned nullable column back to an optional float.
func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// nilIfEmpty returns nil for empty strings so optional text columns stay NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// userColumns is the select list shared by the user scan helpers. Order must
// match scanUser.
const userColumns = `id, phone_number, state, name, surname, alias, email, gender, height, initial_weight, date_of_birth, created_at, updated_at`

// scanUser scans one user row from a query using userColumns.
func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var name, surname, alias, email, gender sql.NullString
	var height, initialWeight sql.NullFloat64
	var dob sql.NullTime
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.State, &name, &surname, &alias, &email,
		&gender, &height, &initialWeight, &dob, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Surname = surname.String
	u.Alias = alias.String
	u.Email = email.String
	u.Gender = gender.String
	u.Height = floatPtr(height)
	u.InitialWeight = floatPtr(initialWeight)
	if dob.Valid {
		t := dob.Time
		u.DateOfBirth = &t
	}
	return &u, nil
}

// scanSession scans one training session row.
func scanSession(row *sql.Row) (*models.TrainingSession, error) {
	var s models.TrainingSession
	var notes sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Notes = notes.String
	return &s, nil
}

// defaultedState returns the state to persist for a new user row.
func defaultedState(s models.StateType) models.StateType {
	if s == "" {
		return models.StateIdle
	}
	return s
}

// touch returns the shared timestamp for created_at/updated_at pairs.
func touch() time.Time {
	return time.Now().UTC()
}
