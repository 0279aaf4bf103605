package mbta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbtacal/internal/model"
)

const feedFixture = `{
  "data": [
    {
      "id": "red-1",
      "attributes": {
        "header": "Red Line delays of up to 20 minutes",
        "description": "Due to a signal problem near Park Street.",
        "effect": "DELAY",
        "active_period": [
          {"start": "2024-06-01T09:00:00-04:00", "end": "2024-06-01T23:00:00-04:00"}
        ],
        "informed_entity": [{"route": "Red"}]
      }
    },
    {
      "id": "blue-1",
      "attributes": {
        "header": "Blue Line suspended",
        "effect": "SUSPENSION",
        "active_period": [],
        "informed_entity": [{"route": "Blue"}]
      }
    },
    {
      "id": "green-1",
      "attributes": {
        "header": "Shuttle buses replace Green Line B branch service",
        "effect": "SHUTTLE",
        "active_period": [{"start": "2024-06-01T09:00:00-04:00", "end": null}],
        "informed_entity": [{"route": "Green-B"}]
      }
    },
    {
      "id": "",
      "attributes": {
        "header": "Record without an id",
        "effect": "DELAY",
        "active_period": [],
        "informed_entity": [{"route": "Red"}]
      }
    },
    {
      "id": "no-header",
      "attributes": {
        "header": "",
        "effect": "DELAY",
        "active_period": [],
        "informed_entity": [{"route": "Red"}]
      }
    },
    {
      "id": "no-route",
      "attributes": {
        "header": "Record without informed entities",
        "effect": "DELAY",
        "active_period": [],
        "informed_entity": []
      }
    },
    {
      "id": "bad-time",
      "attributes": {
        "header": "Record with an unparsable period",
        "effect": "DELAY",
        "active_period": [{"start": "yesterday-ish"}],
        "informed_entity": [{"route": "Red"}]
      }
    },
    {
      "id": "multi-route",
      "attributes": {
        "header": "Alert naming several routes",
        "effect": "SERVICE_CHANGE",
        "active_period": [],
        "informed_entity": [{"route": "Blue"}, {"route": "Orange"}, {"route": "Red"}]
      }
    }
  ]
}`

func TestDecodeAlerts(t *testing.T) {
	alerts, err := DecodeAlerts([]byte(feedFixture))
	require.NoError(t, err)

	// Unmonitored, id-less, header-less, route-less, and unparsable
	// records are all dropped; feed order is preserved.
	require.Len(t, alerts, 3)

	red := alerts[0]
	assert.Equal(t, "red-1", red.ID)
	assert.Equal(t, model.LineRed, red.Line)
	assert.Equal(t, model.Effect("DELAY"), red.Effect)
	assert.Equal(t, "Due to a signal problem near Park Street.", red.Description)
	require.NotNil(t, red.Start)
	require.NotNil(t, red.End)
	assert.Equal(t, 9, red.Start.Hour())

	green := alerts[1]
	assert.Equal(t, "green-1", green.ID)
	assert.Equal(t, model.LineGreen, green.Line, "Green-B must collapse into Green")
	require.NotNil(t, green.Start)
	assert.Nil(t, green.End, "open-ended alert keeps a nil end")

	multi := alerts[2]
	assert.Equal(t, "multi-route", multi.ID)
	assert.Equal(t, model.LineOrange, multi.Line, "first monitored route wins")
}

func TestDecodeAlertsBadPayload(t *testing.T) {
	_, err := DecodeAlerts([]byte("<html>not json</html>"))
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
}

func TestClientFetchesSubwayAlerts(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alerts", r.URL.Path)
		gotQuery = r.URL.Query().Get("filter[route_type]")
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", nil)
	alerts, err := c.ActiveAlerts(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "1", gotQuery, "must filter to subway routes")
	assert.Equal(t, "secret", gotKey)
	assert.Len(t, alerts, 3)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.ActiveAlerts(context.Background(), false)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Contains(t, err.Error(), "alert feed unavailable")
}

func TestClientServesFromCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	cache := NewCache(t.TempDir())
	c := NewClient(srv.URL, "", cache)

	// First cached run fetches and stores.
	_, err := c.ActiveAlerts(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Second cached run reuses the stored body.
	_, err = c.ActiveAlerts(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Bypassing the cache hits the network again.
	_, err = c.ActiveAlerts(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
