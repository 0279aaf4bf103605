package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mbtacal/internal/log"
	"mbtacal/internal/model"
)

// OpError wraps a single failed store operation with the identity of the
// alert or event it was operating on.
type OpError struct {
	Op            string // "create", "update", or "delete"
	SourceAlertID string
	ExternalID    string // empty for creates
	Err           error
}

func (e *OpError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("%s event for alert %s: %v", e.Op, e.SourceAlertID, e.Err)
	}
	return fmt.Sprintf("%s event %s for alert %s: %v", e.Op, e.ExternalID, e.SourceAlertID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Apply executes the plan against the store: deletes, then updates, then
// creates. Deletes run first so provider-side quota is freed before new
// events land. A failed operation is recorded and the rest of the plan
// still runs; all failures come back joined into one error.
func Apply(ctx context.Context, store Store, plan Plan, now time.Time) error {
	var errs []error

	for _, ev := range plan.Delete {
		log.Info("deleting stale event", "alert_id", ev.SourceAlertID, "event_id", ev.ExternalID)
		if err := store.DeleteEvent(ctx, ev.ExternalID); err != nil {
			errs = append(errs, &OpError{
				Op:            "delete",
				SourceAlertID: ev.SourceAlertID,
				ExternalID:    ev.ExternalID,
				Err:           err,
			})
		}
	}

	for _, pair := range plan.Update {
		log.Info("updating event", "alert_id", pair.Alert.ID, "event_id", pair.Event.ExternalID, "summary", pair.Alert.Summary())
		want := model.EventForAlert(pair.Alert, now)
		if err := store.UpdateEvent(ctx, pair.Event.ExternalID, want); err != nil {
			errs = append(errs, &OpError{
				Op:            "update",
				SourceAlertID: pair.Alert.ID,
				ExternalID:    pair.Event.ExternalID,
				Err:           err,
			})
		}
	}

	for _, a := range plan.Create {
		log.Info("creating event", "alert_id", a.ID, "summary", a.Summary())
		if _, err := store.CreateEvent(ctx, model.EventForAlert(a, now)); err != nil {
			errs = append(errs, &OpError{
				Op:            "create",
				SourceAlertID: a.ID,
				Err:           err,
			})
		}
	}

	return errors.Join(errs...)
}
