// Package stream keeps a broker session alive: it subscribes to order
// updates whenever the session connects, journals each update, and
// reconnects with exponential backoff after every disconnect.
package stream

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finvasia/internal/metrics"
	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

const (
	defaultReconnectMin = time.Second
	defaultReconnectMax = time.Minute
	shutdownWait        = 10 * time.Second
)

// Options configures a Supervisor. Only Session is required.
type Options struct {
	Session *finvasia.Session
	Journal store.OrderJournal
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// OnHealth is called with true when the session is confirmed and with
	// false when it disconnects.
	OnHealth func(serving bool)
	// OnOrderUpdate is called for every order update after it is journaled.
	OnOrderUpdate func(finvasia.OrderUpdate)
}

// Supervisor owns a Session for the lifetime of Run.
type Supervisor struct {
	opts    Options
	session *finvasia.Session
	logger  *zap.Logger

	disconnected chan struct{}
	confirmed    atomic.Bool
	connected    atomic.Bool
	now          func() time.Time
}

// New creates a Supervisor and registers its listeners on the session.
func New(opts Options) *Supervisor {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = defaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		opts:         opts,
		session:      opts.Session,
		logger:       logger,
		disconnected: make(chan struct{}, 1),
		now:          time.Now,
	}
	for _, name := range []finvasia.EventName{
		finvasia.EventOpen,
		finvasia.EventInitConnection,
		finvasia.EventConnect,
		finvasia.EventOrderUpdate,
		finvasia.EventError,
		finvasia.EventClose,
		finvasia.EventDisconnect,
	} {
		s.session.On(name, s.handle)
	}
	s.recordState()
	return s
}

// Session returns the supervised session.
func (s *Supervisor) Session() *finvasia.Session {
	return s.session
}

// Connected reports whether the session is currently confirmed.
func (s *Supervisor) Connected() bool {
	return s.connected.Load()
}

// Run connects the session and reconnects it after every disconnect until
// ctx is cancelled. On cancellation the session is closed gracefully and
// ctx.Err() is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.ReconnectMin
	bo.MaxInterval = s.opts.ReconnectMax

	s.session.Connect()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-s.disconnected:
		}

		if s.confirmed.Swap(false) {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		s.logger.Info("session disconnected, reconnecting", zap.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-time.After(wait):
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.Reconnect()
		}
		s.session.Connect()
	}
}

func (s *Supervisor) shutdown() {
	if s.session.State() == finvasia.StateIdle {
		return
	}
	s.session.Disconnect()
	select {
	case <-s.disconnected:
	case <-time.After(shutdownWait):
		s.logger.Warn("session did not close in time")
	}
}

// handle runs on the session's dispatch goroutine and must not block.
func (s *Supervisor) handle(ev finvasia.Event) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionEvent(string(ev.Name))
	}

	switch ev.Name {
	case finvasia.EventConnect:
		s.confirmed.Store(true)
		s.connected.Store(true)
		s.logger.Info("session connected")
		s.setHealth(true)
		s.session.SubscribeOrderUpdates()
	case finvasia.EventOrderUpdate:
		if ev.Update != nil {
			s.orderUpdate(*ev.Update)
		}
	case finvasia.EventError:
		s.logger.Warn("session error", zap.Error(ev.Err))
	case finvasia.EventClose:
		s.logger.Info("session closed", zap.Int("code", ev.CloseCode))
	case finvasia.EventDisconnect:
		s.connected.Store(false)
		s.setHealth(false)
		select {
		case s.disconnected <- struct{}{}:
		default:
		}
	}
	s.recordState()
}

func (s *Supervisor) orderUpdate(u finvasia.OrderUpdate) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.OrderUpdate(u.Status)
	}
	s.logger.Info("order update",
		zap.String("order_id", u.OrderNumber),
		zap.String("status", u.Status),
		zap.String("report", u.ReportType),
	)
	if s.opts.Journal != nil {
		rec := UpdateRecord(u, s.now())
		// A fresh context: the update must be kept even while Run unwinds.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.opts.Journal.AppendUpdate(ctx, rec)
		cancel()
		if err != nil {
			s.logger.Error("journaling order update", zap.String("order_id", u.OrderNumber), zap.Error(err))
		}
	}
	if s.opts.OnOrderUpdate != nil {
		s.opts.OnOrderUpdate(u)
	}
}

func (s *Supervisor) setHealth(serving bool) {
	if s.opts.OnHealth != nil {
		s.opts.OnHealth(serving)
	}
}

func (s *Supervisor) recordState() {
	if s.opts.Metrics == nil {
		return
	}
	all := finvasia.States()
	names := make([]string, len(all))
	for i, st := range all {
		names[i] = st.String()
	}
	s.opts.Metrics.SetSessionState(s.session.State().String(), names)
}

// UpdateRecord converts an order update into its journal form.
func UpdateRecord(u finvasia.OrderUpdate, receivedAt time.Time) *store.OrderUpdateRecord {
	raw := string(u.Raw)
	if raw == "" {
		b, _ := json.Marshal(u)
		raw = string(b)
	}
	return &store.OrderUpdateRecord{
		OrderID:      u.OrderNumber,
		Status:       u.Status,
		ReportType:   u.ReportType,
		FilledQty:    parseFloat(u.FilledShares),
		AveragePrice: parseFloat(u.AveragePrice),
		RejectReason: u.RejectReason,
		Raw:          raw,
		ReceivedAt:   receivedAt,
	}
}

func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
