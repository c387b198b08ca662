package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

func journal() []eventlog.Event {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []eventlog.Event{
		{Offset: 0, Time: at, Kind: eventlog.RouteCreated, Key: "robot1/Chatter", Direction: "publication", Topic: "Chatter", Type: "std_msgs::String"},
		{Offset: 1, Time: at, Kind: eventlog.AllowRejected, Key: "robot1/Denied", Direction: "publication", Topic: "Denied", Type: "std_msgs::String"},
		{Offset: 2, Time: at, Kind: eventlog.RouteRemoved, Key: "robot1/Chatter", Direction: "publication", Topic: "Chatter", Type: "std_msgs::String"},
	}
}

func getEvents(t *testing.T, setup *TestServerSetup, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil)
	req.Header.Set("Authorization", "Bearer "+setup.GenerateTestToken(t, "operator", false))
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	return w
}

// TestEventsEndpointRequiresAuth tests the journal is not public
func TestEventsEndpointRequiresAuth(t *testing.T) {
	setup := NewTestServerSetup(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
}

// TestEventsEndpointPaging tests offset, limit and key filtering
func TestEventsEndpointPaging(t *testing.T) {
	setup := NewTestServerSetup(t)
	setup.Bridge.EventList = journal()
	all := journal()

	tests := []struct {
		name  string
		query string
		want  EventsResponse
	}{
		{"everything", "", EventsResponse{Events: all, NextOffset: 3}},
		{"first page", "?limit=2", EventsResponse{Events: all[:2], NextOffset: 2}},
		{"second page", "?offset=2&limit=2", EventsResponse{Events: all[2:], NextOffset: 3}},
		{"by key", "?key=robot1/Chatter", EventsResponse{Events: []eventlog.Event{all[0], all[2]}, NextOffset: 3}},
		{"past the end", "?offset=10", EventsResponse{Events: []eventlog.Event{}, NextOffset: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getEvents(t, setup, tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp EventsResponse
			decode(t, w, &resp)
			if diff := cmp.Diff(tt.want, resp); diff != "" {
				t.Errorf("Events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestEventsEndpointBadQuery tests invalid paging parameters
func TestEventsEndpointBadQuery(t *testing.T) {
	setup := NewTestServerSetup(t)
	for _, query := range []string{"?offset=-1", "?offset=abc", "?limit=0", "?limit=x"} {
		w := getEvents(t, setup, query)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %s, got %d", query, w.Code)
		}
	}
}

// TestEventsEndpointError tests a failing journal read
func TestEventsEndpointError(t *testing.T) {
	setup := NewTestServerSetup(t)
	setup.Bridge.Err = errors.New("journal closed")

	w := getEvents(t, setup, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "journal closed") {
		t.Errorf("Expected error message in body, got %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("Authorization", setup.GenerateTestToken(t, "operator", false))
	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", w.Code)
	}
}
