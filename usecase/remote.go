package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

var powerOffButtons = map[string]bool{
	"power_off": true,
	"off":       true,
	"power":     true,
}

// ProcessRemote sends one remote button press. It does not touch a pending
// clarification.
func (r *Resolver) ProcessRemote(ctx context.Context, cmd Command, button string) {
	r.run(ctx, cmd, func(ctx context.Context, rec *entities.CommandRecord) error {
		button = strings.TrimSpace(button)
		if button == "" {
			return domain.UserInputError(domain.CodeInvalidButton, "button must be a non-empty string")
		}

		plan := remotePlan(cmd.Session.CurrentRemote(), button)
		rec.Transcript = "remote: " + button
		rec.Tool, rec.Args = plan.Tool, plan.Args

		r.logger.Info("Remote control",
			zap.String("correlationID", cmd.CorrelationID),
			zap.String("deviceID", cmd.Session.DeviceID),
			zap.String("tool", plan.Tool),
			zap.String("button", button))

		cmd.Emit.Processing(StageExecuting)
		result, err := r.execute(ctx, cmd, plan)
		if err != nil {
			return err
		}
		if result.IsAmbiguous() || !result.Success {
			message := strings.TrimSpace(result.Error)
			if message == "" {
				message = "Command failed"
			}
			return domain.NewError(domain.KindProvider, domain.CodeCommandFailed, message).WithDetails(result)
		}

		if powerOffButtons[strings.ToLower(button)] {
			current := cmd.Session.CurrentRemote()
			kind := "tv"
			if current != nil && current.Kind != "" {
				kind = current.Kind
			}
			cmd.Emit.RemoteContext(cmd.Session.DeactivateRemote(kind), ReasonOff)
		}

		rec.Outcome = entities.OutcomeComplete
		cmd.Emit.CommandComplete(result, rec.Transcript, plan)
		return nil
	})
}

// remotePlan targets the tracked media device when there is one, otherwise
// the last used TV.
func remotePlan(remote *entities.RemoteContext, button string) entities.Plan {
	if remote != nil && remote.Active && remote.MediaDeviceID != "" {
		return entities.Plan{
			Tool: "c4_media_remote",
			Args: map[string]interface{}{"device_id": remote.MediaDeviceID, "button": button},
		}
	}
	return entities.Plan{
		Tool: "c4_tv_remote_last",
		Args: map[string]interface{}{"button": button},
	}
}
