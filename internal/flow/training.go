package flow

import (
	"context"
	"log/slog"

	"github.com/vbtlab/trainpipe/internal/models"
)

// handleTrainingManagement is the training menu. The add-training row starts
// a recording session; every other row is declared not ready. The end
// keyword drops the user back to Idle.
func (e *Engine) handleTrainingManagement(ctx context.Context, user *models.User, evt Event) (models.TransitionSignal, error) {
	switch evt.Kind {
	case models.MessageTypeText:
		if isEndKeyword(evt.Text) {
			return models.SignalEnd, nil
		}
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgChooseTraining); err != nil {
			return models.SignalNone, err
		}
		if err := e.sender.SendList(ctx, user.PhoneNumber, trainingMenuList()); err != nil {
			return models.SignalNone, err
		}
		return models.SignalNone, nil

	case models.MessageTypeInteractive:
		reply := evt.ListReply
		if reply != nil && reply.ID == rowAddTrainingID && reply.Title == rowAddTrainingTitle {
			if err := e.sender.SendText(ctx, user.PhoneNumber, msgSendCSVOrEnd); err != nil {
				return models.SignalNone, err
			}
			return models.SignalAddTraining, nil
		}
		if err := e.sender.SendText(ctx, user.PhoneNumber, msgOptionNotReady); err != nil {
			return models.SignalNone, err
		}
		return models.SignalNone, nil

	case models.MessageTypeDocument:
		slog.Debug("TrainingManagement: ignoring document before add-training", "user_id", user.ID)
		return models.SignalNone, nil
	}
	return models.SignalNone, nil
}
