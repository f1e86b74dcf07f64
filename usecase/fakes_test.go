package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

type fakeSTT struct {
	mu         sync.Mutex
	transcribe func(audio entities.AudioPayload) (repositories.Transcript, error)
	received   []entities.AudioPayload
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio entities.AudioPayload) (repositories.Transcript, error) {
	f.mu.Lock()
	f.received = append(f.received, audio)
	f.mu.Unlock()
	if f.transcribe == nil {
		return repositories.Transcript{}, nil
	}
	return f.transcribe(audio)
}

type fakePlanner struct {
	mu    sync.Mutex
	plan  func(transcript string, planCtx repositories.PlanContext) (entities.Plan, error)
	calls int
	last  repositories.PlanContext
}

func (f *fakePlanner) Name() string { return "fake" }

func (f *fakePlanner) Plan(ctx context.Context, transcript string, planCtx repositories.PlanContext) (entities.Plan, error) {
	f.mu.Lock()
	f.calls++
	f.last = planCtx
	f.mu.Unlock()
	return f.plan(transcript, planCtx)
}

func (f *fakePlanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixedPlan returns a planner func that answers every transcript with a fresh
// copy of plan.
func fixedPlan(tool string, args map[string]interface{}) func(string, repositories.PlanContext) (entities.Plan, error) {
	return func(string, repositories.PlanContext) (entities.Plan, error) {
		return entities.Plan{Tool: tool, Args: args}.Clone(), nil
	}
}

type fakeGateway struct {
	mu      sync.Mutex
	execute func(plan entities.Plan) (*entities.ExecutionResult, error)
	catalog []repositories.ToolSpec
	calls   []entities.Plan
}

func (f *fakeGateway) Execute(ctx context.Context, plan entities.Plan, sessionID string) (*entities.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, plan.Clone())
	f.mu.Unlock()
	if f.execute == nil {
		return okResult(plan, map[string]interface{}{"ok": true}), nil
	}
	return f.execute(plan)
}

func (f *fakeGateway) ToolCatalog(ctx context.Context) []repositories.ToolSpec {
	return f.catalog
}

func (f *fakeGateway) ListTools(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.catalog))
	for _, spec := range f.catalog {
		names = append(names, spec.Name)
	}
	return names, nil
}

func (f *fakeGateway) Calls() []entities.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.Plan, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeGateway) CallsTo(tool string) []entities.Plan {
	var out []entities.Plan
	for _, c := range f.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

func okResult(plan entities.Plan, result interface{}) *entities.ExecutionResult {
	return &entities.ExecutionResult{
		Success:   true,
		Tool:      plan.Tool,
		Args:      plan.Args,
		Result:    result,
		Timestamp: time.Now(),
	}
}

func ambiguousResult(plan entities.Plan, kind entities.ClarificationKind, query string, candidates ...entities.Candidate) *entities.ExecutionResult {
	return &entities.ExecutionResult{
		Success: false,
		Tool:    plan.Tool,
		Args:    plan.Args,
		Clarification: &entities.Clarification{
			Kind:       kind,
			Query:      query,
			Prompt:     "Which one did you mean?",
			Candidates: candidates,
		},
		Timestamp: time.Now(),
	}
}

func room(name string, id int) entities.Candidate {
	return entities.Candidate{Name: name, RoomID: entities.IntPtr(id)}
}

type fakeAliasStore struct {
	mu      sync.Mutex
	aliases map[string]repositories.RoomAlias
	getErr  error
	setErr  error
	panics  bool
}

func newFakeAliasStore() *fakeAliasStore {
	return &fakeAliasStore{aliases: make(map[string]repositories.RoomAlias)}
}

func (f *fakeAliasStore) Get(ctx context.Context, clientKey, query string) (*repositories.RoomAlias, error) {
	if f.panics {
		panic("alias store exploded")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	alias, ok := f.aliases[clientKey+"|"+query]
	if !ok {
		return nil, nil
	}
	return &alias, nil
}

func (f *fakeAliasStore) Set(ctx context.Context, clientKey, query string, alias repositories.RoomAlias) error {
	if f.panics {
		panic("alias store exploded")
	}
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases[clientKey+"|"+query] = alias
	return nil
}

func (f *fakeAliasStore) Lookup(clientKey, query string) (repositories.RoomAlias, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alias, ok := f.aliases[clientKey+"|"+query]
	return alias, ok
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*entities.CommandRecord
	err     error
	pruned  []time.Time
}

func (f *fakeHistory) Record(ctx context.Context, record *entities.CommandRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.CommandRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.CommandRecord
	for _, r := range f.records {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.pruned = append(f.pruned, cutoff)
	return 3, nil
}

func (f *fakeHistory) Last() *entities.CommandRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return nil
	}
	return f.records[len(f.records)-1]
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
	external []string
}

func (f *fakeMetrics) CommandFinished(source entities.CommandSource, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, string(source)+":"+outcome)
}

func (f *fakeMetrics) ExternalCall(provider string, elapsed time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.external = append(f.external, provider+":"+status)
}

var errBoom = errors.New("boom")

type harness struct {
	resolver *Resolver
	stt      *fakeSTT
	planner  *fakePlanner
	gateway  *fakeGateway
	aliases  *fakeAliasStore
	history  *fakeHistory
	metrics  *fakeMetrics
	session  *entities.Session
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	h := &harness{
		stt:     &fakeSTT{},
		planner: &fakePlanner{plan: fixedPlan("", nil)},
		gateway: &fakeGateway{},
		aliases: newFakeAliasStore(),
		history: &fakeHistory{},
		metrics: &fakeMetrics{},
		session: entities.NewSession("device-1"),
	}
	logger := zap.NewNop()
	resolver, err := NewResolver(Dependencies{
		SpeechToText: h.stt,
		Planner:      h.planner,
		Gateway:      h.gateway,
		Aliases:      NewAliasService(h.aliases, DefaultAliasTools, logger),
		History:      h.history,
		Metrics:      h.metrics,
	}, config, logger)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	h.resolver = resolver
	return h
}

func (h *harness) command(source entities.CommandSource) (Command, *Recorder) {
	rec := NewRecorder()
	return Command{
		Session:       h.session,
		CorrelationID: "corr-1",
		Source:        source,
		Emit:          rec,
	}, rec
}
