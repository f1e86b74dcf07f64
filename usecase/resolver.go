package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// DefaultRoomGroupLimit caps how many rooms a bulk lights command may fan out to.
const DefaultRoomGroupLimit = 12

var (
	bulkWords  = regexp.MustCompile(`\b(all|every|everything)\b`)
	lightWords = regexp.MustCompile(`\b(lights?|lamps?)\b`)
)

// Metrics receives resolver observations. A nil Metrics is allowed.
type Metrics interface {
	CommandFinished(source entities.CommandSource, outcome string)
	ExternalCall(provider string, elapsed time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) CommandFinished(entities.CommandSource, string) {}
func (nopMetrics) ExternalCall(string, time.Duration, error)      {}

// Dependencies are the collaborators of the Resolver. SpeechToText, Planner
// and Gateway are required.
type Dependencies struct {
	SpeechToText repositories.SpeechToText
	Planner      repositories.Planner
	Gateway      repositories.Gateway
	Aliases      *AliasService
	History      repositories.CommandHistory
	Metrics      Metrics
}

// Config tunes the Resolver.
type Config struct {
	Mood           MoodConfig
	RoomGroupLimit int
}

// Command carries the per-invocation context of one resolver call.
type Command struct {
	Session       *entities.Session
	CorrelationID string
	Source        entities.CommandSource
	Emit          Emitter
}

// Resolver turns transcripts into gateway calls and drives the clarification
// cycle. One Resolver serves every connection; per-connection state lives in
// entities.Session.
type Resolver struct {
	stt      repositories.SpeechToText
	planner  repositories.Planner
	gateway  repositories.Gateway
	aliases  *AliasService
	history  repositories.CommandHistory
	metrics  Metrics
	mood     *MoodDetector
	presence *PresenceReporter
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewResolver wires a Resolver. Missing required collaborators are a
// programming error and fail immediately.
func NewResolver(deps Dependencies, config Config, logger *zap.Logger) (*Resolver, error) {
	if deps.SpeechToText == nil || deps.Planner == nil || deps.Gateway == nil {
		return nil, errors.New("resolver: speech-to-text, planner and gateway are required")
	}
	if logger == nil {
		return nil, errors.New("resolver: logger is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if config.RoomGroupLimit <= 0 {
		config.RoomGroupLimit = DefaultRoomGroupLimit
	}

	return &Resolver{
		stt:      deps.SpeechToText,
		planner:  deps.Planner,
		gateway:  deps.Gateway,
		aliases:  deps.Aliases,
		history:  deps.History,
		metrics:  deps.Metrics,
		mood:     NewMoodDetector(config.Mood),
		presence: NewPresenceReporter(deps.Gateway, logger),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ProcessAudio finalizes the buffered utterance and resolves it. The audio
// buffer is cleared even when the command is rejected as busy.
func (r *Resolver) ProcessAudio(ctx context.Context, cmd Command) {
	audio, _ := cmd.Session.FinalizeAudio()
	r.ProcessUtterance(ctx, cmd, audio)
}

// ProcessUtterance transcribes an already finalized utterance and resolves it.
// An empty payload fails with NO_AUDIO_DATA.
func (r *Resolver) ProcessUtterance(ctx context.Context, cmd Command, audio entities.AudioPayload) {
	r.run(ctx, cmd, func(ctx context.Context, rec *entities.CommandRecord) error {
		if len(audio.Chunks) == 0 {
			return domain.UserInputError(domain.CodeNoAudioData, "No audio data received")
		}
		cmd.Session.ClearPending()

		r.logger.Info("Processing audio stream",
			zap.String("correlationID", cmd.CorrelationID),
			zap.String("deviceID", cmd.Session.DeviceID),
			zap.Int("chunks", len(audio.Chunks)))

		cmd.Emit.Processing(StageTranscription)
		started := r.now()
		transcript, err := r.stt.Transcribe(ctx, audio)
		r.metrics.ExternalCall("stt", r.now().Sub(started), err)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(transcript.Text)
		if text == "" {
			return domain.UserInputError(domain.CodeNoSpeechDetected, "No speech detected")
		}

		rec.Transcript = text
		cmd.Emit.Transcript(text, transcript.Confidence)
		return r.resolve(ctx, cmd, text, rec)
	})
}

// ProcessText resolves a typed transcript.
func (r *Resolver) ProcessText(ctx context.Context, cmd Command, transcript string) {
	r.run(ctx, cmd, func(ctx context.Context, rec *entities.CommandRecord) error {
		text := strings.TrimSpace(transcript)
		if text == "" {
			return domain.UserInputError(domain.CodeInvalidTranscript, "transcript must be a non-empty string")
		}
		cmd.Session.ClearPending()

		rec.Transcript = text
		cmd.Emit.Transcript(text, 1)
		return r.resolve(ctx, cmd, text, rec)
	})
}

// run enforces one command at a time per session, converts every failure into
// a single error event and records the outcome.
func (r *Resolver) run(ctx context.Context, cmd Command, fn func(context.Context, *entities.CommandRecord) error) {
	if !cmd.Session.TryBeginCommand() {
		r.logger.Warn("Command rejected while another is in flight",
			zap.String("correlationID", cmd.CorrelationID),
			zap.String("deviceID", cmd.Session.DeviceID))
		cmd.Emit.Error(domain.CodeBusy, "Another command is still being processed", nil)
		r.metrics.CommandFinished(cmd.Source, "busy")
		return
	}
	defer cmd.Session.EndCommand()

	started := r.now()
	rec := &entities.CommandRecord{
		DeviceID:      cmd.Session.DeviceID,
		CorrelationID: cmd.CorrelationID,
		Source:        cmd.Source,
		CreatedAt:     started.UTC(),
	}

	if err := fn(ctx, rec); err != nil {
		r.emitError(cmd, err)
		rec.Outcome = entities.OutcomeError
		rec.ErrorCode = domain.CodeOf(err, domain.CodeProcessing)
	}
	rec.DurationMs = r.now().Sub(started).Milliseconds()

	r.metrics.CommandFinished(cmd.Source, string(rec.Outcome))
	r.record(ctx, rec)
}

func (r *Resolver) emitError(cmd Command, err error) {
	code := domain.CodeOf(err, domain.CodeProcessing)
	var details interface{}
	if appErr, ok := domain.AsAppError(err); ok {
		details = appErr.Details
	}

	fields := []zap.Field{
		zap.String("correlationID", cmd.CorrelationID),
		zap.String("deviceID", cmd.Session.DeviceID),
		zap.String("code", code),
		zap.Error(err),
	}
	if domain.KindOf(err) == domain.KindUserInput {
		r.logger.Info("Command rejected", fields...)
	} else {
		r.logger.Error("Error processing command", fields...)
	}

	cmd.Emit.Error(code, domain.MessageOf(err), details)
}

// record stores the history entry. It never propagates failures.
func (r *Resolver) record(ctx context.Context, rec *entities.CommandRecord) {
	if r.history == nil {
		return
	}
	defer recoverBestEffort(r.logger, "record command")

	if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("Failed to record command", zap.String("correlationID", rec.CorrelationID), zap.Error(err))
	}
}

// resolve runs mood pre-filter, planner, enrichment and execution for one transcript.
func (r *Resolver) resolve(ctx context.Context, cmd Command, transcript string, rec *entities.CommandRecord) error {
	if follow, ok := r.mood.Detect(transcript); ok {
		return r.startMood(ctx, cmd, transcript, follow, rec)
	}

	cmd.Emit.Processing(StageIntentParsing)
	plan, err := r.plan(ctx, cmd, transcript)
	if err != nil {
		return err
	}
	cmd.Emit.Intent(plan)
	rec.Tool, rec.Args = plan.Tool, plan.Args

	if isPresencePlan(plan) {
		return r.startPresence(ctx, cmd, transcript, plan, rec)
	}

	plan = ApplyRoomContext(plan, cmd.Session.CurrentRoom(), r.logger)
	plan = r.aliases.Apply(ctx, cmd.Session.ClientKey(), plan)
	rec.Args = plan.Args

	cmd.Emit.Processing(StageExecuting)
	result, err := r.execute(ctx, cmd, plan)
	if err != nil {
		return err
	}
	return r.interpret(ctx, cmd, transcript, plan, result, rec)
}

func (r *Resolver) plan(ctx context.Context, cmd Command, transcript string) (entities.Plan, error) {
	planCtx := repositories.PlanContext{
		CorrelationID: cmd.CorrelationID,
		ToolCatalog:   r.gateway.ToolCatalog(ctx),
		CurrentRoom:   cmd.Session.CurrentRoom(),
	}

	started := r.now()
	plan, err := r.planner.Plan(ctx, transcript, planCtx)
	r.metrics.ExternalCall("llm", r.now().Sub(started), err)
	if err != nil {
		return entities.Plan{}, err
	}
	if strings.TrimSpace(plan.Tool) == "" {
		return entities.Plan{}, domain.UserInputError(domain.CodeIntentNotUnderstood, "Could not understand the command")
	}
	if plan.Args == nil {
		plan.Args = map[string]interface{}{}
	}

	r.logger.Info("Planned command",
		zap.String("correlationID", cmd.CorrelationID),
		zap.String("planner", r.planner.Name()),
		zap.String("tool", plan.Tool))
	return plan, nil
}

func (r *Resolver) execute(ctx context.Context, cmd Command, plan entities.Plan) (*entities.ExecutionResult, error) {
	started := r.now()
	result, err := r.gateway.Execute(ctx, plan, cmd.Session.DeviceID)
	r.metrics.ExternalCall("mcp", r.now().Sub(started), err)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.NewError(domain.KindProvider, domain.CodeCommandFailed, "Command failed")
	}
	return result, nil
}

// interpret maps a gateway result onto complete, clarification or failure.
func (r *Resolver) interpret(ctx context.Context, cmd Command, transcript string, plan entities.Plan, result *entities.ExecutionResult, rec *entities.CommandRecord) error {
	if result.IsAmbiguous() {
		clarification := *result.Clarification
		if r.shouldAutoResolveRoomGroup(transcript, plan, clarification) {
			cmd.Emit.Processing(StageExecuting)
			aggregate := r.executeRoomGroup(ctx, cmd, plan, clarification)
			cmd.Session.ClearPending()
			rec.Outcome = entities.OutcomeComplete
			cmd.Emit.CommandComplete(aggregate, transcript, plan)
			return nil
		}

		cmd.Session.SetPending(&entities.PendingClarification{
			OriginalTranscript: transcript,
			OriginalPlan:       plan,
			Clarification:      clarification,
		})
		rec.Outcome = entities.OutcomeClarification
		cmd.Emit.ClarificationRequired(transcript, plan, clarification)
		return nil
	}

	if !result.Success {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "Command failed"
		}
		return domain.NewError(domain.KindProvider, domain.CodeCommandFailed, message).WithDetails(result)
	}

	r.updateContext(cmd, plan, result)
	rec.Outcome = entities.OutcomeComplete
	cmd.Emit.CommandComplete(result, transcript, plan)
	return nil
}

// shouldAutoResolveRoomGroup allows fan-out only for explicit bulk lights
// commands against a bounded room ambiguity.
func (r *Resolver) shouldAutoResolveRoomGroup(transcript string, plan entities.Plan, clarification entities.Clarification) bool {
	if plan.Tool != "c4_room_lights_set" || clarification.Kind != entities.ClarificationRoom {
		return false
	}
	n := len(clarification.Candidates)
	if n == 0 || n > r.config.RoomGroupLimit {
		return false
	}
	t := strings.ToLower(transcript)
	return bulkWords.MatchString(t) && lightWords.MatchString(t)
}

// executeRoomGroup runs the plan once per candidate room, sequentially.
func (r *Resolver) executeRoomGroup(ctx context.Context, cmd Command, plan entities.Plan, clarification entities.Clarification) *entities.AggregateResult {
	entries := make([]entities.RoomGroupEntry, 0, len(clarification.Candidates))
	success := true

	for _, choice := range clarification.Candidates {
		refined, ok := RefinePlan(plan, choice)
		if !ok {
			// Never attempted, but still reported so the group cannot pass.
			success = false
			entries = append(entries, entities.RoomGroupEntry{
				RoomName: choice.Name,
				RoomID:   choice.RoomID,
				Plan:     plan,
				Result: &entities.ExecutionResult{
					Success:   false,
					Tool:      plan.Tool,
					Args:      plan.Args,
					Error:     "Could not build a command for this room",
					Timestamp: r.now().UTC(),
				},
			})
			continue
		}
		result, err := r.execute(ctx, cmd, refined)
		if err != nil {
			result = &entities.ExecutionResult{
				Success:   false,
				Tool:      refined.Tool,
				Args:      refined.Args,
				Error:     domain.MessageOf(err),
				Timestamp: r.now().UTC(),
			}
		}
		if !result.Success {
			success = false
		}
		entries = append(entries, entities.RoomGroupEntry{
			RoomName: choice.Name,
			RoomID:   choice.RoomID,
			Plan:     refined,
			Result:   result,
		})
	}

	query := clarification.Query
	if query == "" {
		query = plan.StringArg("room_name")
	}

	r.logger.Info("Executed room group",
		zap.String("correlationID", cmd.CorrelationID),
		zap.String("query", query),
		zap.Int("rooms", len(entries)),
		zap.Bool("success", success))

	return &entities.AggregateResult{
		Success: success,
		Tool:    plan.Tool,
		Args:    plan.Args,
		Aggregate: map[string]interface{}{
			"kind":  "room-group",
			"query": query,
			"count": len(entries),
		},
		Results:   entries,
		Timestamp: r.now().UTC(),
	}
}

// updateContext refreshes current room and remote after a success. It never
// propagates failures.
func (r *Resolver) updateContext(cmd Command, plan entities.Plan, result *entities.ExecutionResult) {
	defer recoverBestEffort(r.logger, "update context")

	if roomID, roomName, ok := InferRoom(plan, result, r.logger); ok {
		current := cmd.Session.CurrentRoom()
		if current == nil || current.RoomName != roomName || !sameID(current.RoomID, roomID) {
			cmd.Emit.RoomContext(cmd.Session.SetCurrentRoom(roomID, roomName), ReasonInferred)
		}
	}

	if remote, reason, ok := RemoteUpdate(plan, result, cmd.Session.CurrentRoom(), r.logger); ok {
		cmd.Emit.RemoteContext(cmd.Session.SetCurrentRemote(remote), reason)
	}
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
