package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

// SessionWindow is how far back an existing training session still counts as
// the current one. Details imported within the window join that session;
// otherwise a new session is opened.
const SessionWindow = 3 * time.Hour

// Importer persists parsed ADR rows, deduplicating against details already
// stored for the resolved session.
type Importer struct {
	store store.Store
	now   func() time.Time
}

// NewImporter creates an importer backed by the given store.
func NewImporter(s store.Store) *Importer {
	return &Importer{store: s, now: time.Now}
}

// ImportResult reports what one import batch did.
type ImportResult struct {
	SessionID  int64
	NewSession bool
	Inserted   int
	Duplicates int
}

// Import resolves the target session for the user, filters rows whose hash
// already exists in that session, upserts the referenced exercises and
// inserts the surviving details in one transaction. Importing the same file
// twice within the session window is a no-op on the second pass.
func (im *Importer) Import(ctx context.Context, user *models.User, rows []Row) (*ImportResult, error) {
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("import requires a persisted user")
	}

	now := im.now().UTC()
	sess, err := im.store.LatestSessionSince(ctx, user.ID, now.Add(-SessionWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve training session: %w", err)
	}
	result := &ImportResult{}
	if sess == nil {
		sess = &models.TrainingSession{UserID: user.ID}
		if err := im.store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to create training session: %w", err)
		}
		result.NewSession = true
		slog.Info("Importer.Import: opened new training session", "user_id", user.ID, "session_id", sess.ID)
	}
	result.SessionID = sess.ID

	existing, err := im.store.SessionDetailHashes(ctx, user.ID, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing detail hashes: %w", err)
	}

	exerciseIDs := make(map[string]int64)
	details := make([]models.TrainingDetail, 0, len(rows))
	for _, row := range rows {
		if _, dup := existing[row.HashID]; dup {
			result.Duplicates++
			continue
		}
		// Guard against duplicate rows inside the same file.
		existing[row.HashID] = struct{}{}

		// Exercise upserts commit outside the detail transaction: a failed
		// batch can leave exercise rows behind, and a retry reuses them
		// since the upsert is name-keyed and idempotent.
		exerciseID, ok := exerciseIDs[row.Exercise]
		if !ok {
			exerciseID, err = im.store.UpsertExercise(ctx, row.Exercise)
			if err != nil {
				return nil, fmt.Errorf("failed to upsert exercise %q: %w", row.Exercise, err)
			}
			exerciseIDs[row.Exercise] = exerciseID
		}

		details = append(details, models.TrainingDetail{
			SessionID:  sess.ID,
			AthleteID:  user.ID,
			ExerciseID: exerciseID,
			Timestamp:  now,
			Serie:      row.Serie,
			Rep:        row.Rep,
			Kg:         row.Kg,
			D:          row.D,
			VM:         row.VM,
			VMP:        row.VMP,
			RM:         row.RM,
			PW:         row.PW,
			HashID:     row.HashID,
		})
	}

	if err := im.store.InsertDetails(ctx, details); err != nil {
		return nil, fmt.Errorf("failed to insert detail batch: %w", err)
	}
	result.Inserted = len(details)
	slog.Info("Importer.Import: batch imported",
		"user_id", user.ID, "session_id", sess.ID,
		"inserted", result.Inserted, "duplicates", result.Duplicates, "new_session", result.NewSession)
	return result, nil
}
