package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbtacal/internal/model"
)

// fakeStore is an in-memory Store that records the order of mutations and
// can be told to fail specific operations.
type fakeStore struct {
	events []model.Event
	nextID int
	ops    []string
	failOn map[string]error // keyed by op strings like "delete:ev-2"
}

func newFakeStore() *fakeStore {
	return &fakeStore{failOn: map[string]error{}}
}

func (f *fakeStore) op(s string) error {
	f.ops = append(f.ops, s)
	return f.failOn[s]
}

func (f *fakeStore) ListEvents(_ context.Context, _ model.TimeRange) ([]model.Event, error) {
	out := make([]model.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeStore) CreateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	if err := f.op("create:" + ev.SourceAlertID); err != nil {
		return model.Event{}, err
	}
	f.nextID++
	ev.ExternalID = fmt.Sprintf("ev-%d", f.nextID)
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, externalID string, ev model.Event) error {
	if err := f.op("update:" + externalID); err != nil {
		return err
	}
	for i := range f.events {
		if f.events[i].ExternalID == externalID {
			ev.ExternalID = externalID
			f.events[i] = ev
			return nil
		}
	}
	return errors.New("no such event")
}

func (f *fakeStore) DeleteEvent(_ context.Context, externalID string) error {
	if err := f.op("delete:" + externalID); err != nil {
		return err
	}
	for i := range f.events {
		if f.events[i].ExternalID == externalID {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return nil
		}
	}
	return errors.New("no such event")
}

func seedEvent(f *fakeStore, alertID string) model.Event {
	f.nextID++
	ev := model.EventForAlert(timedAlert(alertID, testNow, testNow.Add(time.Hour)), testNow)
	ev.ExternalID = fmt.Sprintf("ev-%d", f.nextID)
	f.events = append(f.events, ev)
	return ev
}

func TestApplyEmptyPlanTouchesNothing(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, Apply(context.Background(), store, Plan{}, testNow))
	assert.Empty(t, store.ops)
}

func TestApplyRunsDeletesBeforeUpdatesBeforeCreates(t *testing.T) {
	store := newFakeStore()
	stale := seedEvent(store, "old")
	current := seedEvent(store, "moved")

	moved := timedAlert("moved", testNow, testNow.Add(3*time.Hour))
	fresh := timedAlert("new", testNow, testNow.Add(time.Hour))

	plan := Plan{
		Create: []model.Alert{fresh},
		Update: []Pair{{Event: current, Alert: moved}},
		Delete: []model.Event{stale},
	}

	require.NoError(t, Apply(context.Background(), store, plan, testNow))
	assert.Equal(t, []string{
		"delete:" + stale.ExternalID,
		"update:" + current.ExternalID,
		"create:new",
	}, store.ops)
}

func TestApplyContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	ev1 := seedEvent(store, "1")
	ev2 := seedEvent(store, "2")
	ev3 := seedEvent(store, "3")

	store.failOn["delete:"+ev2.ExternalID] = errors.New("boom")

	plan := Plan{Delete: []model.Event{ev1, ev2, ev3}}
	err := Apply(context.Background(), store, plan, testNow)

	// All three deletes were attempted.
	assert.Equal(t, []string{
		"delete:" + ev1.ExternalID,
		"delete:" + ev2.ExternalID,
		"delete:" + ev3.ExternalID,
	}, store.ops)

	// Exactly one aggregated failure, naming the second event.
	require.Error(t, err)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "expected a joined error")
	require.Len(t, joined.Unwrap(), 1)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "delete", opErr.Op)
	assert.Equal(t, "2", opErr.SourceAlertID)
	assert.Equal(t, ev2.ExternalID, opErr.ExternalID)
}

func TestApplyReportsFailuresFromEveryPhase(t *testing.T) {
	store := newFakeStore()
	stale := seedEvent(store, "old")
	current := seedEvent(store, "moved")

	store.failOn["delete:"+stale.ExternalID] = errors.New("quota")
	store.failOn["create:new"] = errors.New("denied")

	moved := timedAlert("moved", testNow, testNow.Add(3*time.Hour))
	plan := Plan{
		Create: []model.Alert{timedAlert("new", testNow, testNow.Add(time.Hour))},
		Update: []Pair{{Event: current, Alert: moved}},
		Delete: []model.Event{stale},
	}

	err := Apply(context.Background(), store, plan, testNow)
	require.Error(t, err)

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	assert.Len(t, joined.Unwrap(), 2)

	// The update between the two failures still went through.
	assert.Contains(t, store.ops, "update:"+current.ExternalID)
}

// Fetch → reconcile → apply → reconcile again: the second pass must be a
// no-op against a store that faithfully persists what it is told.
func TestApplyThenReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	alerts := []model.Alert{
		timedAlert("A1", testNow, testNow.Add(2*time.Hour)),
		{ID: "A2", Effect: "SHUTTLE", Line: model.LineGreen, Start: &testNow, Header: "Shuttle buses replace service"},
	}

	events, err := store.ListEvents(ctx, model.TimeRange{})
	require.NoError(t, err)
	plan, err := Reconcile(alerts, events, testNow)
	require.NoError(t, err)
	require.Len(t, plan.Create, 2)
	require.NoError(t, Apply(ctx, store, plan, testNow))

	events, err = store.ListEvents(ctx, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "A1", events[0].SourceAlertID)

	again, err := Reconcile(alerts, events, testNow)
	require.NoError(t, err)
	assert.True(t, again.Empty())
}

func TestOpErrorMessageNamesOperation(t *testing.T) {
	err := &OpError{Op: "update", SourceAlertID: "42", ExternalID: "ev-9", Err: errors.New("500 Internal Server Error")}
	assert.Equal(t, "update event ev-9 for alert 42: 500 Internal Server Error", err.Error())

	create := &OpError{Op: "create", SourceAlertID: "42", Err: errors.New("403 Forbidden")}
	assert.Equal(t, "create event for alert 42: 403 Forbidden", create.Error())
}
