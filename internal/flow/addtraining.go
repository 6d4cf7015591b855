package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbtlab/trainpipe/internal/ingest"
	"github.com/vbtlab/trainpipe/internal/models"
)

// handleAddTraining is the recording state: ADR documents are imported into
// the current training session until the user sends the end keyword.
func (e *Engine) handleAddTraining(ctx context.Context, user *models.User, evt Event) (models.TransitionSignal, error) {
	switch evt.Kind {
	case models.MessageTypeText:
		if isEndKeyword(evt.Text) {
			return models.SignalEnd, nil
		}
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgSendCSVOrEnd); err != nil {
			return models.SignalNone, err
		}
		return models.SignalNone, nil

	case models.MessageTypeInteractive:
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgAlreadyRecording); err != nil {
			return models.SignalNone, err
		}
		return models.SignalNone, nil

	case models.MessageTypeDocument:
		return models.SignalNone, e.importDocument(ctx, user, evt.Document)
	}
	return models.SignalNone, nil
}

// importDocument runs the full ADR import for one uploaded document. Any
// failure bubbles into the error policy and forces the user back to Idle.
func (e *Engine) importDocument(ctx context.Context, user *models.User, doc *models.DocumentContent) error {
	if doc == nil {
		return fmt.Errorf("document message carries no document")
	}
	if !strings.Contains(strings.ToLower(doc.Filename), "adr") {
		slog.Info("AddTraining: rejecting non-ADR document", "user_id", user.ID, "filename", doc.Filename)
		return e.sender.SendText(ctx, user.PhoneNumber, msgNotADRDocument)
	}
	if e.media == nil {
		return fmt.Errorf("no media fetcher configured, cannot download %s", doc.Filename)
	}

	data, err := e.media.DownloadMedia(ctx, doc.MediaID)
	if err != nil {
		return fmt.Errorf("failed to download document %s: %w", doc.Filename, err)
	}
	rows, stats, err := ingest.ParseADR(data)
	if err != nil {
		return fmt.Errorf("failed to parse document %s: %w", doc.Filename, err)
	}
	result, err := e.importer.Import(ctx, user, rows)
	if err != nil {
		return fmt.Errorf("failed to import document %s: %w", doc.Filename, err)
	}
	slog.Info("AddTraining: document imported",
		"user_id", user.ID, "filename", doc.Filename, "session_id", result.SessionID,
		"inserted", result.Inserted, "duplicates", result.Duplicates, "dropped", stats.Dropped)

	return e.sender.SendText(ctx, user.PhoneNumber, msgSendMoreDocuments)
}
