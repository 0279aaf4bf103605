package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbtacal/internal/model"
)

type staticSource struct {
	alerts []model.Alert
}

func (s *staticSource) ActiveAlerts(context.Context, bool) ([]model.Alert, error) {
	return s.alerts, nil
}

// calendarStore mimics the Google listing semantics: the window's start
// lower-bounds an event's end, the window's end upper-bounds its start,
// and a zero bound leaves that side open.
type calendarStore struct {
	events []model.Event
	nextID int
}

func (s *calendarStore) ListEvents(_ context.Context, window model.TimeRange) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range s.events {
		if !window.Start.IsZero() && ev.End.Before(window.Start) {
			continue
		}
		if !window.End.IsZero() && ev.Start.After(window.End) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *calendarStore) CreateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	s.nextID++
	ev.ExternalID = fmt.Sprintf("ev-%d", s.nextID)
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *calendarStore) UpdateEvent(_ context.Context, externalID string, ev model.Event) error {
	for i := range s.events {
		if s.events[i].ExternalID == externalID {
			ev.ExternalID = externalID
			s.events[i] = ev
			return nil
		}
	}
	return fmt.Errorf("no event %s", externalID)
}

func (s *calendarStore) DeleteEvent(_ context.Context, externalID string) error {
	for i := range s.events {
		if s.events[i].ExternalID == externalID {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return nil
}

// An open-ended alert derives an all-day event on its (past) start date,
// and a timed alert whose period has ended derives an event entirely in
// the past. Both sit outside any forward listing window, so repeated
// cycles must still see them instead of re-creating them.
func TestRepeatedSyncKeepsOneEventPerAlert(t *testing.T) {
	openStart := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	pastStart := time.Date(2024, 4, 10, 5, 0, 0, 0, time.UTC)
	pastEnd := time.Date(2024, 4, 12, 22, 0, 0, 0, time.UTC)

	src := &staticSource{alerts: []model.Alert{
		{ID: "shuttle-1", Effect: "SHUTTLE", Line: model.LineGreen, Start: &openStart, Header: "Shuttle buses replace service"},
		{ID: "delay-1", Effect: "DELAY", Line: model.LineRed, Start: &pastStart, End: &pastEnd, Header: "Delays of up to 20 minutes"},
	}}
	store := &calendarStore{}
	s := &syncer{source: src, store: store}

	first, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	require.Len(t, store.events, 2)

	second, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Deleted)

	require.Len(t, store.events, 2)
	perAlert := map[string]int{}
	for _, ev := range store.events {
		perAlert[ev.SourceAlertID]++
	}
	assert.Equal(t, map[string]int{"shuttle-1": 1, "delay-1": 1}, perAlert)
}
