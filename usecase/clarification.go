package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

const moodMusicWarning = "Music did not start (see results.music)."

// ProcessChoice answers the pending clarification with the candidate at index.
// A valid choice returns the session to idle before anything else happens, so
// a repeated choice finds no pending clarification.
func (r *Resolver) ProcessChoice(ctx context.Context, cmd Command, index int) {
	r.run(ctx, cmd, func(ctx context.Context, rec *entities.CommandRecord) error {
		pending, choice, err := cmd.Session.TakeChoice(index)
		if err != nil {
			return err
		}
		rec.Transcript = pending.OriginalTranscript
		rec.Tool, rec.Args = pending.OriginalPlan.Tool, pending.OriginalPlan.Args

		r.logger.Info("Clarification answered",
			zap.String("correlationID", cmd.CorrelationID),
			zap.String("kind", string(pending.Clarification.Kind)),
			zap.Int("choiceIndex", index),
			zap.String("choice", choice.Name))

		r.aliases.Remember(ctx, cmd.Session.ClientKey(), pending, choice)

		if pending.FollowUp != nil && pending.FollowUp.Kind == entities.FollowUpPresence {
			return r.completePresence(ctx, cmd, pending, choice, rec)
		}

		isMood := pending.FollowUp != nil && pending.FollowUp.Kind == entities.FollowUpMood
		if pending.Clarification.Kind == entities.ClarificationRoom && choice.Name != "" {
			reason := ReasonClarification
			if isMood {
				reason = ReasonMood
			}
			cmd.Emit.RoomContext(cmd.Session.SetCurrentRoom(choice.RoomID, choice.Name), reason)
		}

		cmd.Emit.Processing(StageExecuting)
		refined, ok := RefinePlan(pending.OriginalPlan, choice)
		if !ok {
			return domain.NewError(domain.KindInternal, domain.CodeClarificationBuild, "Could not build refined command")
		}
		rec.Tool, rec.Args = refined.Tool, refined.Args

		result, err := r.execute(ctx, cmd, refined)
		if err != nil {
			return err
		}

		if result.IsAmbiguous() {
			cmd.Session.SetPending(&entities.PendingClarification{
				OriginalTranscript: pending.OriginalTranscript,
				OriginalPlan:       refined,
				Clarification:      *result.Clarification,
				FollowUp:           pending.FollowUp,
			})
			rec.Outcome = entities.OutcomeClarification
			cmd.Emit.ClarificationRequired(pending.OriginalTranscript, refined, *result.Clarification)
			return nil
		}

		if !result.Success {
			return domain.NewError(domain.KindProvider, domain.CodeCommandFailed, "Command failed").WithDetails(result)
		}

		r.updateContext(cmd, refined, result)
		rec.Outcome = entities.OutcomeComplete

		if isMood {
			aggregate := r.completeMood(ctx, cmd, pending.FollowUp, choice, result)
			cmd.Emit.CommandComplete(aggregate, pending.OriginalTranscript, refined)
			return nil
		}

		cmd.Emit.CommandComplete(result, pending.OriginalTranscript, refined)
		return nil
	})
}

// startMood asks which room a mood request applies to. The planner is not
// consulted.
func (r *Resolver) startMood(ctx context.Context, cmd Command, transcript string, follow *entities.FollowUp, rec *entities.CommandRecord) error {
	plan := moodLightsPlan(follow)
	rec.Tool, rec.Args = plan.Tool, plan.Args

	cmd.Emit.Processing(StageExecuting)
	rooms, err := r.presence.ListRooms(ctx, cmd.Session.DeviceID)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		return domain.UserInputError(domain.CodeNoRoomsFound, "No rooms found")
	}

	clarification := entities.Clarification{
		Kind:       entities.ClarificationRoom,
		Prompt:     fmt.Sprintf("Which room should I set the %s mood in?", follow.Mood),
		Candidates: rooms,
	}
	cmd.Session.SetPending(&entities.PendingClarification{
		OriginalTranscript: transcript,
		OriginalPlan:       plan,
		Clarification:      clarification,
		FollowUp:           follow,
	})

	r.logger.Info("Mood request needs a room",
		zap.String("correlationID", cmd.CorrelationID),
		zap.String("mood", follow.Mood),
		zap.Int("rooms", len(rooms)))

	rec.Outcome = entities.OutcomeClarification
	cmd.Emit.ClarificationRequired(transcript, plan, clarification)
	return nil
}

// completeMood starts the optional music after the lights succeeded and
// aggregates both results.
func (r *Resolver) completeMood(ctx context.Context, cmd Command, follow *entities.FollowUp, choice entities.Candidate, lights *entities.ExecutionResult) *entities.AggregateResult {
	var music *entities.ExecutionResult
	if follow.MusicSource != "" {
		template := entities.Plan{
			Tool: "c4_room_listen_by_name",
			Args: map[string]interface{}{"source_device_name": follow.MusicSource},
		}
		if listen, ok := RefinePlan(template, choice); ok {
			result, err := r.execute(ctx, cmd, listen)
			if err != nil {
				result = &entities.ExecutionResult{
					Success:   false,
					Tool:      listen.Tool,
					Args:      listen.Args,
					Result:    map[string]interface{}{"ok": false, "error": domain.MessageOf(err)},
					Error:     domain.MessageOf(err),
					Timestamp: r.now().UTC(),
				}
			}
			music = result
		}
	}

	var warnings []string
	if follow.MusicSource != "" && music != nil && !music.Success {
		warnings = append(warnings, moodMusicWarning)
	}

	var roomID, level, musicSource interface{}
	if choice.RoomID != nil {
		roomID = *choice.RoomID
	}
	if follow.LightsLevel != nil {
		level = *follow.LightsLevel
	}
	if follow.MusicSource != "" {
		musicSource = follow.MusicSource
	}

	return &entities.AggregateResult{
		Success: true,
		Aggregate: map[string]interface{}{
			"kind":         "mood-plan",
			"mood":         follow.Mood,
			"room_name":    choice.Name,
			"room_id":      roomID,
			"lights_level": level,
			"music_source": musicSource,
		},
		Results: map[string]interface{}{
			"lights": lights,
			"music":  music,
		},
		Warnings:  warnings,
		Timestamp: r.now().UTC(),
	}
}

// startPresence handles "I'm in the <room>": a unique room becomes the current
// room and gets a report, several rooms open a room clarification.
func (r *Resolver) startPresence(ctx context.Context, cmd Command, transcript string, plan entities.Plan, rec *entities.CommandRecord) error {
	query := plan.StringArg("room_name")
	if query == "" {
		query = plan.StringArg("room")
	}

	cmd.Emit.Processing(StageExecuting)

	if query == "" {
		id, ok := entities.IntValue(plan.Args["room_id"])
		if !ok {
			return domain.UserInputError(domain.CodeIntentNotUnderstood, "Which room are you in?")
		}
		room := entities.Candidate{RoomID: entities.IntPtr(id)}
		return r.presenceComplete(ctx, cmd, transcript, room, rec)
	}

	rooms, err := r.presence.FindRooms(ctx, cmd.Session.DeviceID, query)
	if err != nil {
		return err
	}

	switch len(rooms) {
	case 0:
		return domain.UserInputError(domain.CodeNoRoomsFound, fmt.Sprintf("No rooms matched %q", query))
	case 1:
		return r.presenceComplete(ctx, cmd, transcript, rooms[0], rec)
	}

	clarification := entities.Clarification{
		Kind:       entities.ClarificationRoom,
		Query:      query,
		Prompt:     "Which room are you in?",
		Candidates: rooms,
	}
	cmd.Session.SetPending(&entities.PendingClarification{
		OriginalTranscript: transcript,
		OriginalPlan:       plan,
		Clarification:      clarification,
		FollowUp:           &entities.FollowUp{Kind: entities.FollowUpPresence, Query: query},
	})
	rec.Outcome = entities.OutcomeClarification
	cmd.Emit.ClarificationRequired(transcript, plan, clarification)
	return nil
}

func (r *Resolver) completePresence(ctx context.Context, cmd Command, pending *entities.PendingClarification, choice entities.Candidate, rec *entities.CommandRecord) error {
	cmd.Emit.Processing(StageExecuting)
	return r.presenceComplete(ctx, cmd, pending.OriginalTranscript, choice, rec)
}

func (r *Resolver) presenceComplete(ctx context.Context, cmd Command, transcript string, room entities.Candidate, rec *entities.CommandRecord) error {
	if room.Name != "" || room.RoomID != nil {
		cmd.Emit.RoomContext(cmd.Session.SetCurrentRoom(room.RoomID, room.Name), ReasonPresence)
	}

	report := r.presence.Report(ctx, cmd.Session.DeviceID, room)

	args := map[string]interface{}{}
	if room.RoomID != nil {
		args["room_id"] = *room.RoomID
	}
	plan := entities.Plan{Tool: PresenceTool, Args: args}
	rec.Tool, rec.Args = plan.Tool, plan.Args
	rec.Outcome = entities.OutcomeComplete

	cmd.Emit.CommandComplete(report, transcript, plan)
	return nil
}
