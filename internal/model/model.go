package model

import (
	"fmt"
	"strings"
	"time"
)

// Line identifies one of the monitored subway lines.
type Line string

const (
	LineRed    Line = "Red"
	LineOrange Line = "Orange"
	LineGreen  Line = "Green"
)

// MonitoredLines is the fixed set of lines this tool watches.
var MonitoredLines = []Line{LineRed, LineOrange, LineGreen}

// ParseLine maps a raw GTFS route ID onto a monitored line. Green branch
// routes ("Green-B" .. "Green-E") collapse into LineGreen. ok is false for
// any unmonitored route (Blue, buses, commuter rail, ...).
func ParseLine(route string) (Line, bool) {
	switch {
	case route == "Red":
		return LineRed, true
	case route == "Orange":
		return LineOrange, true
	case strings.HasPrefix(route, "Green"):
		return LineGreen, true
	default:
		return "", false
	}
}

// DisplayName returns the rider-facing line name, e.g. "Red Line".
func (l Line) DisplayName() string {
	return string(l) + " Line"
}

// Effect is the alert category as reported by the feed (e.g. "DELAY",
// "SHUTTLE"). Values outside the known set are carried through verbatim.
type Effect string

// Label returns a human-friendly form of the effect for known kinds and
// falls back to the raw feed value otherwise.
func (e Effect) Label() string {
	switch e {
	case "DELAY":
		return "Delay"
	case "SHUTTLE":
		return "Shuttle"
	case "SUSPENSION":
		return "Suspension"
	case "STATION_CLOSURE":
		return "Station Closure"
	case "STOP_CLOSURE":
		return "Stop Closure"
	case "DETOUR":
		return "Detour"
	case "SERVICE_CHANGE":
		return "Service Change"
	default:
		return string(e)
	}
}

// Alert is one active service alert scoped to a single monitored line.
// Alerts are rebuilt from the feed on every run and never persisted.
type Alert struct {
	ID          string
	Effect      Effect
	Line        Line
	Start       *time.Time // nil when the feed gives no active period
	End         *time.Time // nil for open-ended alerts
	Header      string
	Description string
}

// Summary is the short form used as the calendar event title and the
// banner headline, e.g. "[Red Line] DELAY".
func (a Alert) Summary() string {
	return fmt.Sprintf("[%s] %s", a.Line.DisplayName(), a.Effect)
}

// EventDescription is the long text mirrored into the calendar event.
func (a Alert) EventDescription() string {
	if a.Description == "" {
		return a.Header
	}
	return a.Header + "\n\n" + a.Description
}

// ValidationError reports a raw feed record that cannot become an Alert.
// Callers drop the record and continue; a bad record never aborts a fetch.
type ValidationError struct {
	AlertID string // may be empty when the record has no id
	Field   string
}

func (e *ValidationError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("invalid alert record: missing %s", e.Field)
	}
	return fmt.Sprintf("invalid alert record %s: missing %s", e.AlertID, e.Field)
}

// Event mirrors one Alert as a calendar entry. SourceAlertID is stored in
// the calendar provider itself, so reconciliation needs no local state.
type Event struct {
	ExternalID    string // assigned by the calendar store on create
	SourceAlertID string
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AllDay        bool
}

// TimeRange bounds a calendar listing. A zero field leaves that side of
// the range open; the zero TimeRange means "everything".
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// EventForAlert derives the calendar event that should mirror a. Timed
// alerts become timed events; an open-ended alert becomes an all-day event
// on its start date (exclusive end the next day, as calendar providers
// expect); an alert with no period at all becomes an all-day event on the
// day given by now.
func EventForAlert(a Alert, now time.Time) Event {
	ev := Event{
		SourceAlertID: a.ID,
		Summary:       a.Summary(),
		Description:   a.EventDescription(),
	}

	switch {
	case a.Start != nil && a.End != nil:
		ev.Start = *a.Start
		ev.End = *a.End
	case a.Start != nil:
		day := startOfDay(*a.Start)
		ev.Start = day
		ev.End = day.AddDate(0, 0, 1)
		ev.AllDay = true
	default:
		day := startOfDay(now)
		ev.Start = day
		ev.End = day.AddDate(0, 0, 1)
		ev.AllDay = true
	}

	return ev
}

// SameSchedule reports whether ev already carries want's schedule and text.
// All-day events compare by calendar date since providers round-trip them
// as dates, not instants.
func (ev Event) SameSchedule(want Event) bool {
	if ev.AllDay != want.AllDay || ev.Description != want.Description {
		return false
	}
	if ev.AllDay {
		return ev.Start.Format(time.DateOnly) == want.Start.Format(time.DateOnly) &&
			ev.End.Format(time.DateOnly) == want.End.Format(time.DateOnly)
	}
	return ev.Start.Equal(want.Start) && ev.End.Equal(want.End)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
