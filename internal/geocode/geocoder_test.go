package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"AIBank-Agent/internal/observability/alerting"
)

func sseMessage(t *testing.T, result any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	return "event: message\ndata: " + string(raw) + "\n\n"
}

func geocodeText(name string, lat, lon float64) string {
	return fmt.Sprintf("1. %s\n   Coordinates: %v, %v\n   Bounding box: W:-0.5, S:51.0, E:0.5, N:52.0", name, lat, lon)
}

func textContent(text string) map[string]any {
	return map[string]any{"content": []map[string]any{{"type": "text", "text": text}}}
}

type capturedRequest struct {
	Accept string
	Body   map[string]any
}

func newMapServer(t *testing.T, handler func(w http.ResponseWriter)) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{Accept: r.Header.Get("Accept"), Body: body})
		mu.Unlock()
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGeocodeSuccess(t *testing.T) {
	srv, captured := newMapServer(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseMessage(t, textContent(geocodeText("Tesco Extra, Isleworth, London", 51.459007, -0.337418))))
	})

	client := NewClient(Config{Endpoint: srv.URL, Timeout: time.Second})
	result, ok := client.Geocode(context.Background(), "Tesco Superstore")
	if !ok {
		t.Fatalf("expected a result")
	}
	if result.Label != "Tesco Extra, Isleworth, London" {
		t.Fatalf("unexpected label: %q", result.Label)
	}
	if !almostEqual(result.Latitude, 51.459007) || !almostEqual(result.Longitude, -0.337418) {
		t.Fatalf("unexpected coordinates: %+v", result)
	}
	if result.BBox != nil {
		t.Fatalf("plain geocode should not carry a bounding box")
	}

	if len(*captured) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if !strings.Contains(req.Accept, "application/json") || !strings.Contains(req.Accept, "text/event-stream") {
		t.Fatalf("unexpected accept header: %q", req.Accept)
	}
	if req.Body["method"] != "tools/call" || req.Body["jsonrpc"] != "2.0" {
		t.Fatalf("unexpected envelope: %v", req.Body)
	}
	params := req.Body["params"].(map[string]any)
	if params["name"] != "geocode" {
		t.Fatalf("unexpected tool: %v", params["name"])
	}
	if params["arguments"].(map[string]any)["query"] != "Tesco Superstore" {
		t.Fatalf("unexpected arguments: %v", params["arguments"])
	}
}

func TestGeocodeWithBoundingBox(t *testing.T) {
	srv, _ := newMapServer(t, func(w http.ResponseWriter) {
		fmt.Fprint(w, sseMessage(t, textContent(geocodeText("London", 51.5074, -0.1278))))
	})
	client := NewClient(Config{Endpoint: srv.URL})
	result, ok := client.GeocodeWithBoundingBox(context.Background(), "London")
	if !ok || result.BBox == nil {
		t.Fatalf("expected a result with bbox: %+v %v", result, ok)
	}
	want := BoundingBox{West: -0.5, South: 51.0, East: 0.5, North: 52.0}
	if *result.BBox != want {
		t.Fatalf("unexpected bbox: %+v", *result.BBox)
	}
}

func TestGeocodeWithBoundingBoxFallback(t *testing.T) {
	srv, _ := newMapServer(t, func(w http.ResponseWriter) {
		fmt.Fprint(w, sseMessage(t, textContent("1. London\n   Coordinates: 51.5074, -0.1278\n")))
	})
	client := NewClient(Config{Endpoint: srv.URL})
	result, ok := client.GeocodeWithBoundingBox(context.Background(), "London")
	if !ok || result.BBox == nil {
		t.Fatalf("expected a fallback bbox: %+v %v", result, ok)
	}
	box := *result.BBox
	if !almostEqual(box.West, -0.1378) || !almostEqual(box.East, -0.1178) ||
		!almostEqual(box.South, 51.4974) || !almostEqual(box.North, 51.5174) {
		t.Fatalf("unexpected fallback bbox: %+v", box)
	}
}

func TestGeocodeFailuresDegrade(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter){
		"http error": func(w http.ResponseWriter) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"not sse": func(w http.ResponseWriter) {
			fmt.Fprint(w, "not sse format at all")
		},
		"no content": func(w http.ResponseWriter) {
			fmt.Fprint(w, sseMessage(t, map[string]any{"content": []any{}}))
		},
		"no coordinates": func(w http.ResponseWriter) {
			fmt.Fprint(w, sseMessage(t, textContent("No results found.")))
		},
		"invalid latitude": func(w http.ResponseWriter) {
			fmt.Fprint(w, sseMessage(t, textContent(geocodeText("Nowhere", 91.0, 0.0))))
		},
		"invalid longitude": func(w http.ResponseWriter) {
			fmt.Fprint(w, sseMessage(t, textContent(geocodeText("Nowhere", 0.0, -181.0))))
		},
		"tool error": func(w http.ResponseWriter) {
			fmt.Fprint(w, sseMessage(t, map[string]any{"isError": true, "content": []any{}}))
		},
		"rpc error": func(w http.ResponseWriter) {
			fmt.Fprint(w, `event: message`+"\n"+`data: {"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"quota"}}`+"\n\n")
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := newMapServer(t, handler)
			client := NewClient(Config{Endpoint: srv.URL})
			if _, ok := client.GeocodeWithBoundingBox(context.Background(), "Tesco"); ok {
				t.Fatalf("expected no result")
			}
		})
	}
}

func TestGeocodeConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewClient(Config{Endpoint: endpoint, Timeout: 200 * time.Millisecond})
	if _, ok := client.Geocode(context.Background(), "Tesco"); ok {
		t.Fatalf("expected no result on connection error")
	}
}

func TestGeocodeTimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	if _, ok := client.Geocode(context.Background(), "Tesco"); ok {
		t.Fatalf("expected no result on timeout")
	}
}

func TestGeocodePlainJSONResponse(t *testing.T) {
	srv, _ := newMapServer(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  textContent(geocodeText("Boots, Oxford Street", 51.5154, -0.1419)),
		})
	})
	client := NewClient(Config{Endpoint: srv.URL})
	result, ok := client.Geocode(context.Background(), "Boots")
	if !ok || result.Label != "Boots, Oxford Street" {
		t.Fatalf("unexpected result: %+v %v", result, ok)
	}
}

func TestDisabledClientMakesNoRequest(t *testing.T) {
	for _, endpoint := range []string{"", "   "} {
		client := NewClient(Config{Endpoint: endpoint})
		if client.Enabled() {
			t.Fatalf("endpoint %q should disable the client", endpoint)
		}
		if _, ok := client.Geocode(context.Background(), "Tesco"); ok {
			t.Fatalf("disabled client should not resolve")
		}
		if _, err := client.CallTool(context.Background(), "geocode", nil); err == nil {
			t.Fatalf("disabled client should refuse tool calls")
		}
	}
	if _, ok := (Disabled{}).GeocodeWithBoundingBox(context.Background(), "Tesco"); ok {
		t.Fatalf("Disabled should never resolve")
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	states   []string
}

func (r *recordingObserver) ObserveGeocode(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) ObserveBreakerState(name, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func TestCacheAvoidsSecondRequest(t *testing.T) {
	srv, captured := newMapServer(t, func(w http.ResponseWriter) {
		fmt.Fprint(w, sseMessage(t, textContent(geocodeText("Costa Coffee", 51.5, -0.1))))
	})
	observer := &recordingObserver{}
	client := NewClient(Config{Endpoint: srv.URL}, WithCache(NewMemoryCache(), time.Minute), WithObserver(observer))

	if _, ok := client.GeocodeWithBoundingBox(context.Background(), "Costa  Coffee"); !ok {
		t.Fatalf("expected first lookup to resolve")
	}
	result, ok := client.GeocodeWithBoundingBox(context.Background(), "costa coffee")
	if !ok || result.Label != "Costa Coffee" {
		t.Fatalf("expected cached result, got %+v %v", result, ok)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected one upstream request, got %d", len(*captured))
	}
	if strings.Join(observer.outcomes, ",") != OutcomeResolved+","+OutcomeCacheHit {
		t.Fatalf("unexpected outcomes: %v", observer.outcomes)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv, captured := newMapServer(t, func(w http.ResponseWriter) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	observer := &recordingObserver{}
	client := NewClient(Config{
		Endpoint: srv.URL,
		Breaker:  BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute},
	}, WithObserver(observer))

	for i := 0; i < 4; i++ {
		if _, ok := client.Geocode(context.Background(), "Tesco"); ok {
			t.Fatalf("expected no result")
		}
	}
	if len(*captured) != 2 {
		t.Fatalf("breaker should stop upstream calls after two failures, got %d", len(*captured))
	}
	if len(observer.states) == 0 || observer.states[0] != "open" {
		t.Fatalf("expected an open transition, got %v", observer.states)
	}
	if observer.outcomes[len(observer.outcomes)-1] != OutcomeBreakerOpen {
		t.Fatalf("unexpected outcomes: %v", observer.outcomes)
	}
}

type channelDispatcher chan alerting.Event

func (c channelDispatcher) Notify(_ context.Context, event alerting.Event) error {
	c <- event
	return nil
}

func TestBreakerOpenRaisesAlert(t *testing.T) {
	srv, _ := newMapServer(t, func(w http.ResponseWriter) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	alerts := make(channelDispatcher, 4)
	client := NewClient(Config{
		Endpoint: srv.URL,
		Breaker:  BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute},
	}, WithAlerter(alerts))

	client.Geocode(context.Background(), "Tesco")

	select {
	case event := <-alerts:
		if event.Source != alerting.SourceGeocode || event.Metadata["endpoint"] != srv.URL {
			t.Fatalf("unexpected alert: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an alert when the breaker opens")
	}
}
