package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"finvasia/internal/metrics"
	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

// fakeBroker acknowledges every handshake and records subscriptions.
type fakeBroker struct {
	srv        *httptest.Server
	upgrades   atomic.Int32
	subscribes atomic.Int32
	conns      chan *websocket.Conn
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.upgrades.Add(1)
		b.conns <- conn
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env struct {
				T string `json:"t"`
			}
			json.Unmarshal(data, &env)
			switch env.T {
			case "c":
				conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"ck"}`))
			case "o":
				b.subscribes.Add(1)
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no socket connection arrived")
		return nil
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type healthLog struct {
	mu     sync.Mutex
	values []bool
}

func (h *healthLog) set(v bool) {
	h.mu.Lock()
	h.values = append(h.values, v)
	h.mu.Unlock()
}

func (h *healthLog) last() (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.values) == 0 {
		return false, false
	}
	return h.values[len(h.values)-1], true
}

func newSession(b *fakeBroker) *finvasia.Session {
	return finvasia.NewSession(finvasia.SessionOptions{
		URL:               "ws" + strings.TrimPrefix(b.srv.URL, "http"),
		UserID:            "FA1234",
		AccessToken:       "token",
		HeartbeatInterval: time.Hour,
		ConfirmDelay:      20 * time.Millisecond,
		CloseTimeout:      500 * time.Millisecond,
	})
}

func newJournal(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "stream.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSupervisorSubscribesAndJournals(t *testing.T) {
	b := newFakeBroker(t)
	journal := newJournal(t)
	m := metrics.New()
	health := &healthLog{}
	var forwarded atomic.Int32

	sup := New(Options{
		Session:       newSession(b),
		Journal:       journal,
		Metrics:       m,
		OnHealth:      health.set,
		OnOrderUpdate: func(finvasia.OrderUpdate) { forwarded.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	conn := b.conn(t)
	waitUntil(t, "subscription", func() bool { return b.subscribes.Load() == 1 })
	if !sup.Connected() {
		t.Error("Connected() = false after subscription")
	}
	if v, ok := health.last(); !ok || !v {
		t.Errorf("health = %v (set %v), want true", v, ok)
	}

	frame := `{"t":"om","norenordno":"24011000000001","status":"COMPLETE","reporttype":"Fill","fillshares":"10","avgprc":"1500.5"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitUntil(t, "order update forwarded", func() bool { return forwarded.Load() == 1 })

	updates, err := journal.ListUpdates(context.Background(), "24011000000001")
	if err != nil || len(updates) != 1 {
		t.Fatalf("ListUpdates() = %+v, %v", updates, err)
	}
	if updates[0].FilledQty != 10 || updates[0].AveragePrice != 1500.5 {
		t.Errorf("update = %+v, want filled 10 at 1500.5", updates[0])
	}
	want := `
# HELP finvasia_order_updates_total Order updates received by status.
# TYPE finvasia_order_updates_total counter
finvasia_order_updates_total{status="COMPLETE"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "finvasia_order_updates_total"); err != nil {
		t.Error(err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if st := sup.Session().State(); st != finvasia.StateIdle {
		t.Errorf("State() = %v after shutdown, want idle", st)
	}
	if v, _ := health.last(); v {
		t.Error("health still true after shutdown")
	}
}

func TestSupervisorReconnects(t *testing.T) {
	b := newFakeBroker(t)
	m := metrics.New()
	sup := New(Options{
		Session:      newSession(b),
		Metrics:      m,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	first := b.conn(t)
	waitUntil(t, "first subscription", func() bool { return b.subscribes.Load() == 1 })

	// Drop the socket without a close handshake.
	first.UnderlyingConn().Close()

	b.conn(t)
	waitUntil(t, "resubscription", func() bool { return b.subscribes.Load() == 2 })
	if got := b.upgrades.Load(); got != 2 {
		t.Errorf("upgrades = %d, want 2", got)
	}
	want := `
# HELP finvasia_session_reconnects_total Reconnect attempts made by the stream supervisor.
# TYPE finvasia_session_reconnects_total counter
finvasia_session_reconnects_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "finvasia_session_reconnects_total"); err != nil {
		t.Error(err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSupervisorCancelWhileDialing(t *testing.T) {
	// Nothing listens here; every dial fails and Run keeps backing off.
	sess := finvasia.NewSession(finvasia.SessionOptions{URL: "ws://127.0.0.1:1/", UserID: "U"})
	sup := New(Options{Session: sess, ReconnectMin: 5 * time.Millisecond, ReconnectMax: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := sup.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want DeadlineExceeded", err)
	}
	waitUntil(t, "idle", func() bool { return sess.State() == finvasia.StateIdle })
}

func TestUpdateRecord(t *testing.T) {
	at := time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)
	u := finvasia.OrderUpdate{
		OrderNumber:  "1",
		Status:       "REJECTED",
		ReportType:   "Rejected",
		FilledShares: "",
		AveragePrice: "abc",
		RejectReason: "RMS:Margin Exceeds",
		Raw:          json.RawMessage(`{"t":"om"}`),
	}
	rec := UpdateRecord(u, at)
	if rec.OrderID != "1" || rec.Status != "REJECTED" || rec.RejectReason != "RMS:Margin Exceeds" {
		t.Errorf("UpdateRecord() = %+v", rec)
	}
	if rec.FilledQty != 0 || rec.AveragePrice != 0 {
		t.Errorf("unparseable numbers = %v/%v, want 0/0", rec.FilledQty, rec.AveragePrice)
	}
	if rec.Raw != `{"t":"om"}` {
		t.Errorf("Raw = %q", rec.Raw)
	}
	if !rec.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v, want %v", rec.ReceivedAt, at)
	}

	u.Raw = nil
	if rec := UpdateRecord(u, at); !strings.Contains(rec.Raw, `"norenordno":"1"`) {
		t.Errorf("Raw without frame = %q, want marshalled update", rec.Raw)
	}
}
