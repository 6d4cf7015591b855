package flow

import (
	"context"
	"log/slog"

	"github.com/vbtlab/trainpipe/internal/models"
)

// handleIdle is the resting state. Text gets nudged toward the main menu;
// only the training row moves the user forward.
func (e *Engine) handleIdle(ctx context.Context, user *models.User, evt Event) (models.TransitionSignal, error) {
	switch evt.Kind {
	case models.MessageTypeText:
		slog.Debug("Idle: text received, sending main menu", "user_id", user.ID)
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgChooseFromList); err != nil {
			return models.SignalNone, err
		}
		if err := e.sender.SendList(ctx, user.PhoneNumber, mainMenuList()); err != nil {
			return models.SignalNone, err
		}
		return models.SignalNone, nil

	case models.MessageTypeInteractive:
		reply := evt.ListReply
		if reply != nil && reply.ID == rowTrainingID && reply.Title == rowTrainingTitle {
			if err := e.sender.SendList(ctx, user.PhoneNumber, trainingMenuList()); err != nil {
				return models.SignalNone, err
			}
			return models.SignalTrainingSelected, nil
		}
		slog.Debug("Idle: ignoring unrecognized list reply", "user_id", user.ID)
		return models.SignalNone, nil

	case models.MessageTypeDocument:
		// Documents are only meaningful while recording a session.
		slog.Debug("Idle: ignoring document outside a session", "user_id", user.ID)
		return models.SignalNone, nil
	}
	return models.SignalNone, nil
}
