// Package mbta fetches active subway alerts from the MBTA v3 API and
// validates them into the model types the rest of the tool works with.
package mbta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mbtacal/internal/log"
	"mbtacal/internal/model"
)

// routeTypeSubway is the GTFS routes.txt route_type for subway/metro.
// See https://gtfs.org/documentation/schedule/reference/#routestxt
const routeTypeSubway = 1

// SourceError wraps a failure to reach or decode the alert feed.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("alert feed unavailable: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Raw JSON:API shapes as served by /alerts.
type alertsResponse struct {
	Data []alertRecord `json:"data"`
}

type alertRecord struct {
	ID         string          `json:"id"`
	Attributes alertAttributes `json:"attributes"`
}

type alertAttributes struct {
	Header         string           `json:"header"`
	Description    *string          `json:"description"`
	Effect         string           `json:"effect"`
	ActivePeriod   []activePeriod   `json:"active_period"`
	InformedEntity []informedEntity `json:"informed_entity"`
}

type activePeriod struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type informedEntity struct {
	Route *string `json:"route"`
}

// Client queries the MBTA v3 API, optionally serving the day's response
// from the dated disk cache.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *Cache // nil disables caching entirely
}

// NewClient creates an alert-feed client. cache may be nil.
func NewClient(baseURL, apiKey string, cache *Cache) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: cache,
	}
}

// ActiveAlerts returns the validated alerts currently active on the
// monitored lines, in feed order. When useCache is true and today's
// response is already on disk, no network call is made.
func (c *Client) ActiveAlerts(ctx context.Context, useCache bool) ([]model.Alert, error) {
	raw, err := c.rawAlerts(ctx, useCache)
	if err != nil {
		return nil, err
	}
	return DecodeAlerts(raw)
}

func (c *Client) rawAlerts(ctx context.Context, useCache bool) ([]byte, error) {
	if useCache && c.cache != nil {
		if body, ok := c.cache.ReadToday(); ok {
			log.Debug("using cached alert response", "bytes", len(body))
			return body, nil
		}
	}

	body, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.WriteToday(body); err != nil {
			// The fetched body is still good; a cache write failure only
			// costs a refetch tomorrow.
			log.Error("alert cache write failed", err)
		}
	}

	return body, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(c.baseURL + "/alerts")
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	q := u.Query()
	q.Set("filter[route_type]", strconv.Itoa(routeTypeSubway))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	log.Debug("fetching alerts", "url", u.Host+u.Path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	return body, nil
}

// DecodeAlerts parses a raw /alerts response and validates each record.
// Records for unmonitored routes are dropped silently; malformed records
// are logged and dropped without failing the batch.
func DecodeAlerts(raw []byte) ([]model.Alert, error) {
	var resp alertsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &SourceError{Err: err}
	}

	alerts := make([]model.Alert, 0, len(resp.Data))
	for _, rec := range resp.Data {
		a, err := validate(rec)
		if err != nil {
			if errors.Is(err, errUnmonitored) {
				continue
			}
			log.Warn("dropping invalid alert record", "err", err)
			continue
		}
		alerts = append(alerts, a)
	}

	log.Debug("decoded alert feed", "records", len(resp.Data), "alerts", len(alerts))
	return alerts, nil
}

// errUnmonitored marks records for lines outside the monitored set; they
// are filtered, not invalid.
var errUnmonitored = errors.New("route not monitored")

func validate(rec alertRecord) (model.Alert, error) {
	if rec.ID == "" {
		return model.Alert{}, &model.ValidationError{Field: "id"}
	}
	if rec.Attributes.Header == "" {
		return model.Alert{}, &model.ValidationError{AlertID: rec.ID, Field: "header"}
	}

	line, err := recordLine(rec)
	if err != nil {
		return model.Alert{}, err
	}

	a := model.Alert{
		ID:     rec.ID,
		Effect: model.Effect(rec.Attributes.Effect),
		Line:   line,
		Header: rec.Attributes.Header,
	}
	if rec.Attributes.Description != nil {
		a.Description = *rec.Attributes.Description
	}

	if len(rec.Attributes.ActivePeriod) > 0 {
		period := rec.Attributes.ActivePeriod[0]
		start, err := parsePeriodTime(rec.ID, period.Start)
		if err != nil {
			return model.Alert{}, err
		}
		end, err := parsePeriodTime(rec.ID, period.End)
		if err != nil {
			return model.Alert{}, err
		}
		a.Start = start
		a.End = end
	}

	return a, nil
}

// recordLine picks the alert's line from its informed entities. The first
// monitored route wins; an alert is not fanned out across lines even when
// it names several routes.
func recordLine(rec alertRecord) (model.Line, error) {
	sawRoute := false
	for _, entity := range rec.Attributes.InformedEntity {
		if entity.Route == nil {
			continue
		}
		sawRoute = true
		if line, ok := model.ParseLine(*entity.Route); ok {
			return line, nil
		}
	}
	if !sawRoute {
		return "", &model.ValidationError{AlertID: rec.ID, Field: "route"}
	}
	return "", errUnmonitored
}

func parsePeriodTime(alertID string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, &model.ValidationError{AlertID: alertID, Field: "active_period"}
	}
	return &t, nil
}
