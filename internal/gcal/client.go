// Package gcal implements the calendar store on the Google Calendar v3
// REST API. Events created here carry the source alert ID in a private
// extended property, which is the only identity mapping the sync relies on.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/google"

	"mbtacal/internal/log"
	"mbtacal/internal/model"
)

const (
	calendarAPI   = "https://www.googleapis.com/calendar/v3/calendars"
	calendarScope = "https://www.googleapis.com/auth/calendar"

	// Private extended properties attached to every event this tool owns.
	// propSource scopes listings to our events; propAlertID is the
	// identity key reconciliation matches on.
	propSource  = "mbta_alert_source"
	propAlertID = "mbta_alert_id"
)

// StoreError wraps a failed calendar operation.
type StoreError struct {
	Op         string
	ExternalID string // empty for list/create
	Err        error
}

func (e *StoreError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("calendar %s %s: %v", e.Op, e.ExternalID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Client talks to one Google calendar. It satisfies reconcile.Store.
type Client struct {
	baseURL    string
	calendarID string
	client     *http.Client
}

// NewClient builds a calendar client authenticated as a service account.
// key is the service-account JSON key.
func NewClient(ctx context.Context, calendarID string, key []byte) (*Client, error) {
	if calendarID == "" {
		return nil, errors.New("calendar ID is empty")
	}

	conf, err := google.JWTConfigFromJSON(key, calendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	return &Client{
		baseURL:    calendarAPI,
		calendarID: calendarID,
		client:     conf.Client(ctx),
	}, nil
}

// Wire shapes for the events resource.
type eventList struct {
	Items         []eventResource `json:"items"`
	NextPageToken string          `json:"nextPageToken"`
}

type eventResource struct {
	ID                 string              `json:"id,omitempty"`
	Summary            string              `json:"summary,omitempty"`
	Description        string              `json:"description,omitempty"`
	Start              *eventTime          `json:"start,omitempty"`
	End                *eventTime          `json:"end,omitempty"`
	ExtendedProperties *extendedProperties `json:"extendedProperties,omitempty"`
}

type eventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

type extendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

func (r eventResource) alertID() string {
	if r.ExtendedProperties == nil {
		return ""
	}
	return r.ExtendedProperties.Private[propAlertID]
}

// ListEvents pages through the calendar's events, returning only events
// this tool created (filtered on the source marker property). A zero
// window field leaves that side of the listing unbounded; sync relies on
// the fully unbounded listing, since an owned event that falls outside
// any time bound would be invisible to reconciliation and re-created on
// every run.
func (c *Client) ListEvents(ctx context.Context, window model.TimeRange) ([]model.Event, error) {
	var events []model.Event
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("privateExtendedProperty", propSource+"=true")
		if !window.Start.IsZero() {
			q.Set("timeMin", window.Start.Format(time.RFC3339))
		}
		if !window.End.IsZero() {
			q.Set("timeMax", window.End.Format(time.RFC3339))
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventList
		if err := c.do(ctx, http.MethodGet, c.eventsURL()+"?"+q.Encode(), nil, &page); err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}

		log.Debug("fetched calendar events", "count", len(page.Items))

		for _, item := range page.Items {
			ev, err := eventFromResource(item)
			if err != nil {
				// An event without our identity property cannot be
				// reconciled; skip it rather than risk deleting it.
				log.Warn("skipping unrecognized calendar event", "event_id", item.ID, "err", err)
				continue
			}
			events = append(events, ev)
		}

		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// CreateEvent inserts ev and returns it with the store-assigned ID filled in.
func (c *Client) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	var created eventResource
	if err := c.do(ctx, http.MethodPost, c.eventsURL(), resourceForEvent(ev), &created); err != nil {
		return model.Event{}, &StoreError{Op: "create", Err: err}
	}
	ev.ExternalID = created.ID
	return ev, nil
}

// UpdateEvent replaces the event identified by externalID with ev.
func (c *Client) UpdateEvent(ctx context.Context, externalID string, ev model.Event) error {
	if err := c.do(ctx, http.MethodPut, c.eventURL(externalID), resourceForEvent(ev), nil); err != nil {
		return &StoreError{Op: "update", ExternalID: externalID, Err: err}
	}
	return nil
}

// DeleteEvent removes the event identified by externalID. Deleting an
// event that is already gone is treated as success.
func (c *Client) DeleteEvent(ctx context.Context, externalID string) error {
	err := c.do(ctx, http.MethodDelete, c.eventURL(externalID), nil, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusGone || se.code == http.StatusNotFound) {
			log.Debug("event already gone", "event_id", externalID)
			return nil
		}
		return &StoreError{Op: "delete", ExternalID: externalID, Err: err}
	}
	return nil
}

func (c *Client) eventsURL() string {
	return c.baseURL + "/" + url.PathEscape(c.calendarID) + "/events"
}

func (c *Client) eventURL(eventID string) string {
	return c.eventsURL() + "/" + url.PathEscape(eventID)
}

// statusError carries the HTTP status of a failed API call so callers can
// special-case specific codes.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return e.status }

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func resourceForEvent(ev model.Event) eventResource {
	res := eventResource{
		Summary:     ev.Summary,
		Description: ev.Description,
		ExtendedProperties: &extendedProperties{
			Private: map[string]string{
				propSource:  "true",
				propAlertID: ev.SourceAlertID,
			},
		},
	}

	if ev.AllDay {
		res.Start = &eventTime{Date: ev.Start.Format(time.DateOnly)}
		res.End = &eventTime{Date: ev.End.Format(time.DateOnly)}
	} else {
		res.Start = &eventTime{DateTime: ev.Start.Format(time.RFC3339)}
		res.End = &eventTime{DateTime: ev.End.Format(time.RFC3339)}
	}

	return res
}

func eventFromResource(res eventResource) (model.Event, error) {
	alertID := res.alertID()
	if alertID == "" {
		return model.Event{}, errors.New("missing alert id property")
	}

	ev := model.Event{
		ExternalID:    res.ID,
		SourceAlertID: alertID,
		Summary:       res.Summary,
		Description:   res.Description,
	}

	var err error
	if ev.Start, ev.AllDay, err = parseEventTime(res.Start); err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	if ev.End, _, err = parseEventTime(res.End); err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	return ev, nil
}

func parseEventTime(et *eventTime) (time.Time, bool, error) {
	switch {
	case et == nil:
		return time.Time{}, false, errors.New("missing time")
	case et.Date != "":
		t, err := time.Parse(time.DateOnly, et.Date)
		return t, true, err
	case et.DateTime != "":
		t, err := time.Parse(time.RFC3339, et.DateTime)
		return t, false, err
	default:
		return time.Time{}, false, errors.New("empty time")
	}
}
