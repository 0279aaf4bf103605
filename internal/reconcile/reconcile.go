// Package reconcile computes and applies the set of calendar mutations
// needed to make calendar events match the current alert feed. Identity is
// keyed purely on the source alert ID carried by each event; schedule and
// text may change for the same alert without it becoming a new event.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"mbtacal/internal/model"
)

// Store is the calendar surface Apply mutates. Listing is done by the
// caller before Reconcile so the planner itself stays free of I/O.
type Store interface {
	ListEvents(ctx context.Context, window model.TimeRange) ([]model.Event, error)
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, externalID string, ev model.Event) error
	DeleteEvent(ctx context.Context, externalID string) error
}

// Pair joins an existing event with the alert whose current state it
// should be updated to.
type Pair struct {
	Event model.Event
	Alert model.Alert
}

// Plan is the set of mutations that converges the calendar to the alert
// feed. The three lists are disjoint by source alert ID, and each keeps
// the insertion order of its input sequence.
type Plan struct {
	Create []model.Alert
	Update []Pair
	Delete []model.Event
}

// Empty reports whether the plan is a no-op.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// DuplicateEventError indicates the store holds more than one event for
// the same source alert. That breaks the identity invariant reconciliation
// depends on, so it is surfaced instead of silently resolved.
type DuplicateEventError struct {
	SourceAlertID string
	ExternalIDs   [2]string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("duplicate events for alert %s: %s and %s",
		e.SourceAlertID, e.ExternalIDs[0], e.ExternalIDs[1])
}

// Reconcile diffs the current alerts against the events previously created
// for them. now supplies the day used when deriving events for alerts with
// no active period; passing it in keeps the planner pure and testable.
//
// An existing event is scheduled for update only when its derived schedule
// or description differs, so a run over an already-converged calendar
// produces an empty plan.
func Reconcile(alerts []model.Alert, events []model.Event, now time.Time) (Plan, error) {
	byAlertID := make(map[string]model.Event, len(events))
	for _, ev := range events {
		if prev, ok := byAlertID[ev.SourceAlertID]; ok {
			return Plan{}, &DuplicateEventError{
				SourceAlertID: ev.SourceAlertID,
				ExternalIDs:   [2]string{prev.ExternalID, ev.ExternalID},
			}
		}
		byAlertID[ev.SourceAlertID] = ev
	}

	var plan Plan

	active := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		active[a.ID] = true

		ev, ok := byAlertID[a.ID]
		if !ok {
			plan.Create = append(plan.Create, a)
			continue
		}
		if !ev.SameSchedule(model.EventForAlert(a, now)) {
			plan.Update = append(plan.Update, Pair{Event: ev, Alert: a})
		}
	}

	for _, ev := range events {
		if !active[ev.SourceAlertID] {
			plan.Delete = append(plan.Delete, ev)
		}
	}

	return plan, nil
}
