package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"finvasia/internal/metrics"
	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

type fakeSession struct {
	mu    sync.Mutex
	state finvasia.State
	last  time.Time
}

func (f *fakeSession) State() finvasia.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeSession) set(st finvasia.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}

func newJournal(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedJournal(t *testing.T, j *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)
	for i, id := range []string{"A1", "A2"} {
		rec := &store.OrderRecord{
			OrderID: id, Mode: store.ModeLive, Exchange: "NSE", TradingSymbol: "INFY-EQ",
			Side: "B", Quantity: 1, Price: 1500, Product: "C", OrderType: "LMT", Validity: "DAY",
			Status: "OPEN", CreatedAt: now.Add(time.Duration(i) * time.Minute), UpdatedAt: now,
		}
		if err := j.SaveOrder(ctx, rec); err != nil {
			t.Fatalf("SaveOrder: %v", err)
		}
	}
	if err := j.AppendUpdate(ctx, &store.OrderUpdateRecord{
		OrderID: "A1", Status: "COMPLETE", ReportType: "Fill", FilledQty: 1, Raw: "{}", ReceivedAt: now,
	}); err != nil {
		t.Fatalf("AppendUpdate: %v", err)
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestNewServer(t *testing.T) {
	s := NewServer(Options{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.GRPC() == nil {
		t.Error("GRPC() = nil")
	}
}

func TestHealthz(t *testing.T) {
	sess := &fakeSession{state: finvasia.StateIdle}
	srv := httptest.NewServer(NewServer(Options{Session: sess}).Handler())
	defer srv.Close()

	if code, _ := get(t, srv.URL+"/healthz"); code != http.StatusServiceUnavailable {
		t.Errorf("idle /healthz = %d, want 503", code)
	}
	sess.set(finvasia.StateConnected)
	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK {
		t.Errorf("connected /healthz = %d, want 200", code)
	}
	if !strings.Contains(body, `"state":"connected"`) {
		t.Errorf("/healthz body = %s", body)
	}
}

func TestSessionEndpoint(t *testing.T) {
	last := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)
	srv := httptest.NewServer(NewServer(Options{
		Session: &fakeSession{state: finvasia.StateAckPending, last: last},
	}).Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/api/v1/session")
	if code != http.StatusOK {
		t.Fatalf("/api/v1/session = %d", code)
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.State != "ack_pending" || info.Connected || !info.LastActivity.Equal(last) {
		t.Errorf("session = %+v", info)
	}
}

func TestOrderRoutes(t *testing.T) {
	j := newJournal(t)
	seedJournal(t, j)
	srv := httptest.NewServer(NewServer(Options{Journal: j}).Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/api/v1/orders")
	var orders []store.OrderRecord
	if code != http.StatusOK || json.Unmarshal([]byte(body), &orders) != nil || len(orders) != 2 {
		t.Fatalf("/orders = %d %s", code, body)
	}

	code, body = get(t, srv.URL+"/api/v1/orders?status=COMPLETE")
	orders = nil
	if code != http.StatusOK || json.Unmarshal([]byte(body), &orders) != nil || len(orders) != 1 || orders[0].OrderID != "A1" {
		t.Errorf("/orders?status=COMPLETE = %d %s", code, body)
	}

	if code, _ := get(t, srv.URL+"/api/v1/orders?limit=x"); code != http.StatusBadRequest {
		t.Errorf("/orders?limit=x = %d, want 400", code)
	}

	if code, _ := get(t, srv.URL+"/api/v1/orders/A2"); code != http.StatusOK {
		t.Errorf("/orders/A2 = %d, want 200", code)
	}
	if code, _ := get(t, srv.URL+"/api/v1/orders/ZZ"); code != http.StatusNotFound {
		t.Errorf("/orders/ZZ = %d, want 404", code)
	}

	code, body = get(t, srv.URL+"/api/v1/orders/A1/updates")
	var updates []store.OrderUpdateRecord
	if code != http.StatusOK || json.Unmarshal([]byte(body), &updates) != nil || len(updates) != 1 {
		t.Errorf("/orders/A1/updates = %d %s", code, body)
	}
	code, body = get(t, srv.URL+"/api/v1/orders/A2/updates")
	if code != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Errorf("/orders/A2/updates = %d %s, want []", code, body)
	}
}

func TestOrderRoutesWithoutJournal(t *testing.T) {
	srv := httptest.NewServer(NewServer(Options{}).Handler())
	defer srv.Close()
	if code, _ := get(t, srv.URL+"/api/v1/orders"); code != http.StatusNotFound {
		t.Errorf("/orders without journal = %d, want 404", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := httptest.NewServer(NewServer(Options{Metrics: metrics.New()}).Handler())
	defer srv.Close()
	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Errorf("/metrics = %d, missing go collector", code)
	}
}

func TestGRPCHealth(t *testing.T) {
	s := NewServer(Options{})
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go s.GRPC().Serve(lis)
	defer s.GRPC().Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(HealthService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status = %v, want NOT_SERVING", got)
	}
	s.SetServing(true)
	if got := check(""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status after SetServing(true) = %v, want SERVING", got)
	}
	s.SetServing(false)
	if got := check(HealthService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after SetServing(false) = %v, want NOT_SERVING", got)
	}
}

func TestHubBroadcastsOrderUpdates(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(Options{Hub: hub}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastOrderUpdate(finvasia.OrderUpdate{OrderNumber: "24011000000001", Status: "OPEN"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string               `json:"type"`
		Data finvasia.OrderUpdate `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if msg.Type != "orderUpdate" || msg.Data.OrderNumber != "24011000000001" || msg.Data.Status != "OPEN" {
		t.Errorf("message = %s", data)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(Options{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
