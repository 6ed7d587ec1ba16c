package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/store/memory"
	"github.com/fixl-developer/tma-automation/internal/testutil"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDispatcher(t *testing.T, st *memory.Store, handler action.Handler, cfg *types.DispatcherConfig) *Dispatcher {
	t.Helper()
	reg := action.NewRegistry()
	if handler != nil {
		reg.Register(types.ActionNotify, handler)
	}
	return New(st, action.NewExecutor(reg, nil), cfg, nil)
}

func seedBookingRule(t *testing.T, st *memory.Store, packID, ruleID string, conds []types.Condition) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.GetPack(ctx, packID); err != nil {
		require.NoError(t, st.PutPack(ctx, testutil.MakePack(packID)))
	}
	rule := testutil.MakeRule(ruleID, packID, "tenant-1", "Booking", "booking.created")
	rule.Conditions = conds
	rule.Actions = []types.Action{{Type: types.ActionNotify, Config: map[string]string{"message": "hi"}}}
	require.NoError(t, st.PutRule(ctx, rule))
}

func bookingEvent(amount float64) types.Event {
	return types.Event{
		TenantID: "tenant-1",
		Entity:   "Booking",
		Name:     "booking.created",
		Payload:  map[string]any{"amount": amount},
	}
}

func TestMatchOrderingAndScoping(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	// Two active packs in order, one draft pack, rules across tenants.
	require.NoError(t, st.PutPack(ctx, testutil.MakePack("pack-b")))
	require.NoError(t, st.PutPack(ctx, testutil.MakePack("pack-a")))
	draft := testutil.MakePack("pack-draft")
	draft.Status = types.PackDraft
	require.NoError(t, st.PutPack(ctx, draft))

	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-b1", "pack-b", "tenant-1", "Booking", "booking.created")))
	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-b2", "pack-b", "tenant-1", "Booking", "booking.created")))
	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-a1", "pack-a", "tenant-1", "Booking", "booking.created")))
	// Wrong tenant, wrong event, disabled rule, draft pack.
	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-other-tenant", "pack-a", "tenant-2", "Booking", "booking.created")))
	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-other-event", "pack-a", "tenant-1", "Booking", "booking.cancelled")))
	disabled := testutil.MakeRule("r-disabled", "pack-a", "tenant-1", "Booking", "booking.created")
	disabled.Status = types.RuleDisabled
	require.NoError(t, st.PutRule(ctx, disabled))
	require.NoError(t, st.PutRule(ctx, testutil.MakeRule("r-draft-pack", "pack-draft", "tenant-1", "Booking", "booking.created")))

	d := newTestDispatcher(t, st, nil, nil)
	cands, err := d.Match(ctx, bookingEvent(100))
	require.NoError(t, err)

	var ids []string
	for _, c := range cands {
		ids = append(ids, c.Rule.ID)
	}
	// Pack insertion order, then rule insertion order within each pack.
	assert.Equal(t, []string{"r-b1", "r-b2", "r-a1"}, ids)
}

func TestMatchStateTrigger(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.PutPack(ctx, testutil.MakePack("pack-1")))

	rule := testutil.MakeRule("r-state", "pack-1", "tenant-1", "booking-flow", "")
	rule.Trigger = types.Trigger{Kind: types.TriggerState, Entity: "booking-flow", StateName: "approved"}
	require.NoError(t, st.PutRule(ctx, rule))
	// SCHEDULE rules never match inbound events.
	sched := testutil.MakeRule("r-sched", "pack-1", "tenant-1", "", "")
	sched.Trigger = types.Trigger{Kind: types.TriggerSchedule, CronExpr: "*/5 * * * *"}
	require.NoError(t, st.PutRule(ctx, sched))

	d := newTestDispatcher(t, st, nil, nil)
	cands, err := d.Match(ctx, types.Event{
		TenantID:  "tenant-1",
		Entity:    "booking-flow",
		StateName: "approved",
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "r-state", cands[0].Rule.ID)
}

func TestEnqueueValidation(t *testing.T) {
	d := newTestDispatcher(t, memory.New(), nil, nil)

	err := d.Enqueue(types.Event{Entity: "Booking", Name: "booking.created"})
	require.Error(t, err, "missing tenant")

	err = d.Enqueue(types.Event{TenantID: "t", Entity: "Booking"})
	require.Error(t, err, "missing name and stateName")
}

func TestEnqueueDepthGuard(t *testing.T) {
	d := newTestDispatcher(t, memory.New(), nil, nil)

	ev := bookingEvent(1)
	ev.Depth = types.MaxDispatchDepth
	err := d.Enqueue(ev)
	require.ErrorIs(t, err, ErrDepthExceeded)

	ev.Depth = types.MaxDispatchDepth - 1
	require.NoError(t, d.Enqueue(ev))
}

func TestEnqueueQueueFull(t *testing.T) {
	d := newTestDispatcher(t, memory.New(), nil, &types.DispatcherConfig{Workers: 1, QueueSize: 2})
	// Workers not started: the queue fills.
	require.NoError(t, d.Enqueue(bookingEvent(1)))
	require.NoError(t, d.Enqueue(bookingEvent(2)))
	require.ErrorIs(t, d.Enqueue(bookingEvent(3)), ErrQueueFull)
}

func TestDispatchEndToEnd(t *testing.T) {
	st := memory.New()
	handler := &testutil.RecordingHandler{}
	seedBookingRule(t, st, "pack-1", "rule-1", []types.Condition{
		{Field: "amount", Operator: types.OpGreaterThan, Value: 1000},
	})

	d := newTestDispatcher(t, st, handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	// Passing event: one SUCCESS execution, one side effect.
	require.NoError(t, d.Enqueue(bookingEvent(1500)))
	execs := testutil.WaitForExecutions(t, st, "rule-1", 1, 2*time.Second)
	assert.Equal(t, types.ExecutionSuccess, execs[0].Status)
	assert.Equal(t, "pack-1", execs[0].PackID)
	assert.Equal(t, "tenant-1", execs[0].TenantID)
	assert.Equal(t, 1, handler.Count())

	// Failing condition: one SKIPPED execution, no new side effects.
	require.NoError(t, d.Enqueue(bookingEvent(500)))
	execs = testutil.WaitForExecutions(t, st, "rule-1", 2, 2*time.Second)
	assert.Equal(t, types.ExecutionSkipped, execs[0].Status)
	assert.Equal(t, 1, handler.Count())
}

func TestMalformedConditionSkipsRule(t *testing.T) {
	st := memory.New()
	handler := &testutil.RecordingHandler{}
	seedBookingRule(t, st, "pack-1", "rule-bad", []types.Condition{
		{Field: "amount", Operator: "matches", Value: 1},
	})

	d := newTestDispatcher(t, st, handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Enqueue(bookingEvent(1500)))
	execs := testutil.WaitForExecutions(t, st, "rule-bad", 1, 2*time.Second)
	assert.Equal(t, types.ExecutionSkipped, execs[0].Status)
	assert.NotEmpty(t, execs[0].Error)
	assert.Zero(t, handler.Count())
}

// Exactly one execution per (event, matched rule) pair under concurrent
// dispatch of many events across many rules.
func TestExactlyOnceUnderConcurrency(t *testing.T) {
	const (
		ruleCount  = 50
		eventCount = 1000
	)

	st := memory.New()
	handler := &testutil.RecordingHandler{}
	ctx := context.Background()
	require.NoError(t, st.PutPack(ctx, testutil.MakePack("pack-1")))
	for i := 0; i < ruleCount; i++ {
		rule := testutil.MakeRule(fmt.Sprintf("rule-%02d", i), "pack-1", "tenant-1", "Booking", "booking.created")
		rule.Actions = []types.Action{{Type: types.ActionNotify}}
		require.NoError(t, st.PutRule(ctx, rule))
	}

	d := newTestDispatcher(t, st, handler, &types.DispatcherConfig{Workers: 16, QueueSize: eventCount + 10})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.Start(runCtx)

	for i := 0; i < eventCount; i++ {
		require.NoError(t, d.Enqueue(bookingEvent(float64(i))))
	}

	testutil.WaitFor(t, 30*time.Second, func() bool {
		execs, err := st.ListRecentExecutions(ctx, 0)
		return err == nil && len(execs) == ruleCount*eventCount
	}, "all executions recorded")
	d.Stop()

	// No drops, no duplicates: every rule saw every event exactly once.
	for i := 0; i < ruleCount; i++ {
		execs, err := st.ListExecutions(ctx, fmt.Sprintf("rule-%02d", i), 0)
		require.NoError(t, err)
		require.Len(t, execs, eventCount)
		seen := make(map[string]bool, len(execs))
		for _, exec := range execs {
			require.False(t, seen[exec.ID], "duplicate execution id")
			seen[exec.ID] = true
		}
	}
	assert.Equal(t, ruleCount*eventCount, handler.Count())
}

func TestMidFlightDisableCancelsRemainingActions(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.PutPack(ctx, testutil.MakePack("pack-1")))

	rule := testutil.MakeRule("rule-1", "pack-1", "tenant-1", "Booking", "booking.created")
	rule.Actions = []types.Action{
		{Type: types.ActionNotify},
		{Type: types.ActionNotify},
	}
	require.NoError(t, st.PutRule(ctx, rule))

	// First action disables the rule; the gate must stop the second.
	reg := action.NewRegistry()
	reg.Register(types.ActionNotify, action.HandlerFunc(func(_ context.Context, inv action.Invocation) error {
		r, err := st.GetRule(context.Background(), inv.RuleID)
		if err != nil {
			return err
		}
		r.Status = types.RuleDisabled
		return st.PutRule(context.Background(), *r)
	}))
	d := New(st, action.NewExecutor(reg, nil), nil, nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.Start(runCtx)
	defer d.Stop()

	require.NoError(t, d.Enqueue(bookingEvent(1)))
	execs := testutil.WaitForExecutions(t, st, "rule-1", 1, 2*time.Second)
	require.Len(t, execs, 1)
	assert.Equal(t, types.ExecutionSkippedCancelled, execs[0].Status)
	require.Len(t, execs[0].ActionResults, 2)
	assert.Equal(t, types.ActionSucceeded, execs[0].ActionResults[0].Status)
	assert.Equal(t, types.ActionSkipped, execs[0].ActionResults[1].Status)
}

func TestTestFireRunsFullPipeline(t *testing.T) {
	st := memory.New()
	handler := &testutil.RecordingHandler{}
	seedBookingRule(t, st, "pack-1", "rule-1", []types.Condition{
		{Field: "amount", Operator: types.OpGreaterThan, Value: 1000},
	})

	d := newTestDispatcher(t, st, handler, nil)

	exec, err := d.TestFire(context.Background(), "rule-1", map[string]any{"amount": 2000})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, exec.Status)
	assert.Equal(t, 1, handler.Count())

	exec, err = d.TestFire(context.Background(), "rule-1", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSkipped, exec.Status)
	assert.Equal(t, 1, handler.Count())

	// Recorded like any other execution.
	execs, err := st.ListExecutions(context.Background(), "rule-1", 10)
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

func TestTestFireUnknownRule(t *testing.T) {
	d := newTestDispatcher(t, memory.New(), nil, nil)
	_, err := d.TestFire(context.Background(), "ghost", nil)
	require.Error(t, err)
}
