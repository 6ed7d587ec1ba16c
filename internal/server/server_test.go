package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/internal/health"
	"github.com/fixl-developer/tma-automation/internal/store/memory"
	"github.com/fixl-developer/tma-automation/internal/testutil"
	"github.com/fixl-developer/tma-automation/internal/workflow"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

type testEnv struct {
	store   *memory.Store
	handler *testutil.RecordingHandler
	router  http.Handler
}

func newTestEnv(t *testing.T, apiKey string, policies []types.SLAPolicy) *testEnv {
	t.Helper()
	st := memory.New()
	recorder := &testutil.RecordingHandler{}
	reg := action.NewRegistry()
	reg.Register(types.ActionNotify, recorder)

	executor := action.NewExecutor(reg, nil)
	machine := workflow.NewMachine(st, executor, nil)
	d := dispatch.New(st, executor, nil, nil)
	machine.SetEmitter(d.Enqueue)
	d.Start(context.Background())
	t.Cleanup(d.Stop)

	srv := New(":0", Deps{
		Store:      st,
		Dispatcher: d,
		Machine:    machine,
		Health:     health.New(st, nil, policies, nil),
		APIKey:     apiKey,
	})
	return &testEnv{store: st, handler: recorder, router: srv.Router()}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedBookingRule(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.PutPack(ctx, testutil.MakePack("booking-pack")))
	rule := testutil.MakeRule("notify-large", "booking-pack", "tenant-1", "Booking", "booking.created")
	rule.Conditions = []types.Condition{{Field: "amount", Operator: types.OpGreaterThan, Value: 1000}}
	rule.Actions = []types.Action{{Type: types.ActionNotify, Config: map[string]string{"message": "large booking"}}}
	require.NoError(t, env.store.PutRule(ctx, rule))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.request(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, "secret", nil)

	rec := env.request(t, http.MethodGet, "/api/packs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/packs", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/packs", nil, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health checks stay unauthenticated.
	rec = env.request(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestEvent(t *testing.T) {
	env := newTestEnv(t, "", nil)
	seedBookingRule(t, env)

	rec := env.request(t, http.MethodPost, "/api/events", types.Event{
		TenantID: "tenant-1",
		Entity:   "Booking",
		Name:     "booking.created",
		Payload:  map[string]any{"amount": 1500},
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	execs := testutil.WaitForExecutions(t, env.store, "notify-large", 1, 2*time.Second)
	assert.Equal(t, types.ExecutionSuccess, execs[0].Status)
	assert.Equal(t, 1, env.handler.Count())
}

func TestIngestEventRejections(t *testing.T) {
	env := newTestEnv(t, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/events", types.Event{Entity: "Booking", Name: "booking.created"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing tenantId")

	rec = env.request(t, http.MethodPost, "/api/events", types.Event{
		TenantID: "tenant-1", Entity: "Booking", Name: "booking.created",
		Depth: types.MaxDispatchDepth,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "chain depth exhausted")
}

func TestPackLifecycle(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.request(t, http.MethodPost, "/api/packs", types.Pack{ID: "pack-1", Name: "Pack One"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[types.Pack](t, rec)
	assert.Equal(t, types.PackDraft, created.Status, "status defaults to draft")
	assert.Equal(t, types.HealthOK, created.Health)

	rec = env.request(t, http.MethodPost, "/api/packs", types.Pack{Name: "no id"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/packs/pack-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/packs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/packs/pack-1", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/packs/pack-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[types.Pack](t, rec)
	assert.Equal(t, types.PackDeprecated, got.Status, "deprecation is a soft delete")
}

func TestRuleLifecycle(t *testing.T) {
	env := newTestEnv(t, "", nil)
	require.NoError(t, env.store.PutPack(context.Background(), testutil.MakePack("pack-1")))

	rule := types.Rule{
		ID: "rule-1", PackID: "pack-1", TenantID: "tenant-1", Name: "my rule",
		Status:  types.RuleActive,
		Trigger: types.Trigger{Kind: types.TriggerEvent, Entity: "Booking", EventName: "booking.created"},
	}
	rec := env.request(t, http.MethodPost, "/api/rules", rule, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Unknown pack
	orphan := rule
	orphan.ID = "rule-2"
	orphan.PackID = "missing"
	rec = env.request(t, http.MethodPost, "/api/rules", orphan, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Invalid trigger
	bad := rule
	bad.ID = "rule-3"
	bad.Trigger = types.Trigger{Kind: types.TriggerEvent}
	rec = env.request(t, http.MethodPost, "/api/rules", bad, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/rules/rule-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/rules/rule-1", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.request(t, http.MethodGet, "/api/rules/rule-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleEditConflict(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ctx := context.Background()
	require.NoError(t, env.store.PutPack(ctx, testutil.MakePack("pack-1")))

	held, err := env.store.AcquireLock(ctx, "rule:rule-1", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	rule := types.Rule{
		ID: "rule-1", PackID: "pack-1", TenantID: "tenant-1", Name: "my rule",
		Trigger: types.Trigger{Kind: types.TriggerEvent, Entity: "Booking", EventName: "booking.created"},
	}
	rec := env.request(t, http.MethodPost, "/api/rules", rule, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTestRuleEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	seedBookingRule(t, env)

	rec := env.request(t, http.MethodPost, "/api/rules/notify-large/test",
		map[string]any{"context": map[string]any{"amount": 1500}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exec := decodeBody[types.Execution](t, rec)
	assert.Equal(t, types.ExecutionSuccess, exec.Status)

	rec = env.request(t, http.MethodPost, "/api/rules/notify-large/test",
		map[string]any{"context": map[string]any{"amount": 500}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exec = decodeBody[types.Execution](t, rec)
	assert.Equal(t, types.ExecutionSkipped, exec.Status)

	// Test fires land in the execution log like any other run.
	rec = env.request(t, http.MethodGet, "/api/rules/notify-large/executions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	execs := decodeBody[[]types.Execution](t, rec)
	assert.Len(t, execs, 2)

	rec = env.request(t, http.MethodPost, "/api/rules/missing/test",
		map[string]any{"context": map[string]any{}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func bookingWorkflowDoc() types.Workflow {
	return types.Workflow{
		ID:     "booking-flow",
		Name:   "Booking",
		Type:   types.WorkflowBooking,
		Status: types.WorkflowActive,
		States: []types.WorkflowState{
			{
				Name: "requested",
				Transitions: []types.TransitionGuard{
					{Event: "approve", Target: "confirmed"},
				},
			},
			{Name: "confirmed", Terminal: true},
		},
	}
}

func TestWorkflowVersioning(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.request(t, http.MethodPost, "/api/workflows", bookingWorkflowDoc(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	v1 := decodeBody[types.Workflow](t, rec)
	assert.Equal(t, 1, v1.Version)

	rec = env.request(t, http.MethodPost, "/api/workflows", bookingWorkflowDoc(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	v2 := decodeBody[types.Workflow](t, rec)
	assert.Equal(t, 2, v2.Version, "edits append a new version")

	rec = env.request(t, http.MethodGet, "/api/workflows/booking-flow", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decodeBody[types.Workflow](t, rec)
	assert.Equal(t, 2, latest.Version)

	rec = env.request(t, http.MethodGet, "/api/workflows/booking-flow?version=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pinned := decodeBody[types.Workflow](t, rec)
	assert.Equal(t, 1, pinned.Version)

	// A dangling transition target is rejected.
	broken := bookingWorkflowDoc()
	broken.States[0].Transitions[0].Target = "nowhere"
	rec = env.request(t, http.MethodPost, "/api/workflows", broken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstanceLifecycle(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.request(t, http.MethodPost, "/api/workflows", bookingWorkflowDoc(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/workflows/booking-flow/instances",
		map[string]string{"tenantId": "tenant-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	inst := decodeBody[types.WorkflowInstance](t, rec)
	assert.Equal(t, "requested", inst.CurrentState)

	rec = env.request(t, http.MethodPost, "/api/workflows/missing/instances",
		map[string]string{"tenantId": "tenant-1"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/instances/"+inst.ID+"/advance",
		map[string]string{"event": "approve"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[map[string]any](t, rec)
	instance := result["instance"].(map[string]any)
	assert.Equal(t, "confirmed", instance["currentState"])
	assert.Equal(t, "requested", result["previousState"])
	assert.NotContains(t, result, "actionError")

	// Terminal now; further events are rejected and state is untouched.
	rec = env.request(t, http.MethodPost, "/api/instances/"+inst.ID+"/advance",
		map[string]string{"event": "approve"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/instances/"+inst.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[types.WorkflowInstance](t, rec)
	assert.Equal(t, "confirmed", got.CurrentState)

	rec = env.request(t, http.MethodPost, "/api/instances/missing/advance",
		map[string]string{"event": "approve"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// A transition whose guard action fails still applies; the response carries
// the same fields as the success case plus the action error.
func TestAdvanceActionFailureKeepsResponseShape(t *testing.T) {
	env := newTestEnv(t, "", nil)
	wf := bookingWorkflowDoc()
	// No WEBHOOK handler is registered in this environment, so the guard
	// action fails while the transition itself goes through.
	wf.States[0].Transitions[0].Actions = []types.Action{
		{Type: types.ActionWebhook, Config: map[string]string{"url": "http://example.invalid"}},
	}
	rec := env.request(t, http.MethodPost, "/api/workflows", wf, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/workflows/booking-flow/instances",
		map[string]string{"tenantId": "tenant-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	inst := decodeBody[types.WorkflowInstance](t, rec)

	rec = env.request(t, http.MethodPost, "/api/instances/"+inst.ID+"/advance",
		map[string]string{"event": "approve"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[map[string]any](t, rec)

	instance := result["instance"].(map[string]any)
	assert.Equal(t, "confirmed", instance["currentState"])
	assert.Equal(t, "requested", result["previousState"])
	assert.NotEmpty(t, result["actionResults"])
	assert.Contains(t, result["actionError"], "WEBHOOK")
}

func TestSLAEndpoint(t *testing.T) {
	env := newTestEnv(t, "", []types.SLAPolicy{{Module: "dispatch", Tier: "gold", TargetMs: 200}})
	seedBookingRule(t, env)

	rec := env.request(t, http.MethodPost, "/api/rules/notify-large/test",
		map[string]any{"context": map[string]any{"amount": 1500}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/sla", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]types.SLAStatusEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, types.SLAMet, entries[0].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.request(t, http.MethodGet, "/api/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_accepted")
}
