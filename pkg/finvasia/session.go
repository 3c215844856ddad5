package finvasia

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"finvasia/internal/routes"
)

// Session defaults.
const (
	DefaultHeartbeatInterval = 3 * time.Second
	DefaultConfirmDelay      = 3 * time.Second
	DefaultCloseTimeout      = 5 * time.Second

	writeWait = 10 * time.Second
)

// SessionOptions configures a Session. Zero values select the defaults.
type SessionOptions struct {
	URL               string
	UserID            string
	AccessToken       string
	HeartbeatInterval time.Duration
	// ConfirmDelay is how long a connection acknowledgement must stand
	// before the connect event fires.
	ConfirmDelay time.Duration
	// CloseTimeout bounds how long Disconnect waits for the peer to answer
	// the close frame before dropping the transport.
	CloseTimeout time.Duration
	Dialer       *websocket.Dialer
	Logger       *zap.Logger
}

// Session owns the realtime order-update socket. It keeps at most one
// connection; reconnecting after EventDisconnect is the caller's decision.
type Session struct {
	opts   SessionOptions
	logger *zap.Logger

	mu           sync.Mutex
	userID       string
	accountID    string
	token        string
	state        State
	conn         *connection
	gen          uint64
	confirm      *time.Timer
	confirmSeq   uint64
	lastActivity time.Time

	// dispatchMu serializes transport callbacks and listener execution.
	dispatchMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[EventName][]Listener
}

// connection is one dial attempt and, if it succeeds, its socket. Fields
// other than writeMu are guarded by Session.mu.
type connection struct {
	gen      uint64
	ws       *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	closing  bool
	tornDown bool

	writeMu sync.Mutex
}

func (c *connection) write(ws *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// NewSession creates an idle Session.
func NewSession(opts SessionOptions) *Session {
	if opts.URL == "" {
		opts.URL = routes.DefaultSocketURL
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ConfirmDelay <= 0 {
		opts.ConfirmDelay = DefaultConfirmDelay
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		opts:         opts,
		logger:       opts.Logger,
		userID:       opts.UserID,
		accountID:    opts.UserID,
		token:        opts.AccessToken,
		lastActivity: time.Now(),
		listeners:    make(map[EventName][]Listener),
	}
}

// On registers fn for the named event.
func (s *Session) On(name EventName, fn Listener) {
	s.listenersMu.Lock()
	s.listeners[name] = append(s.listeners[name], fn)
	s.listenersMu.Unlock()
}

// SetUserID sets the user id. The account id follows it.
func (s *Session) SetUserID(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.accountID = userID
	s.mu.Unlock()
}

// SetAccessToken sets the token used by the next handshake. An open
// connection is not affected.
func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when the transport last opened or delivered a frame.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Connect starts a connection attempt in the background. It does nothing if
// an attempt is outstanding, a connection is live, or one is closing.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	c := &connection{gen: s.gen, cancel: cancel, done: make(chan struct{})}
	s.conn = c
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Debug("connecting", zap.String("url", s.opts.URL), zap.Uint64("gen", c.gen))
	go s.run(ctx, c)
}

// SubscribeOrderUpdates asks the broker to stream order updates for the
// account. Without an open transport the request is dropped.
func (s *Session) SubscribeOrderUpdates() {
	s.mu.Lock()
	c := s.conn
	var ws *websocket.Conn
	if c != nil && !c.closing {
		ws = c.ws
	}
	frame := subscribeFrame{T: frameSubscribe, AccountID: s.accountID}
	s.mu.Unlock()

	if ws == nil {
		s.logger.Debug("subscribe dropped: transport not open")
		return
	}
	data, _ := json.Marshal(frame)
	s.logger.Debug("subscribing order updates", zap.ByteString("frame", data))
	if err := c.write(ws, data); err != nil {
		s.logger.Debug("subscribe send failed", zap.Error(err))
	}
}

// Disconnect requests the transport to close. EventDisconnect fires later,
// once the close completes.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	if c == nil || c.closing {
		s.mu.Unlock()
		return
	}
	c.closing = true
	s.state = StateClosing
	ws := c.ws
	s.mu.Unlock()

	if ws == nil {
		// Still dialing; cancelling makes the dial fail into teardown.
		c.cancel()
		return
	}
	s.closeTransport(c, ws)
}

// closeTransport sends a close frame and drops the socket if the peer does
// not complete the close handshake within CloseTimeout.
func (s *Session) closeTransport(c *connection, ws *websocket.Conn) {
	deadline := time.Now().Add(s.opts.CloseTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		ws.Close()
		return
	}
	go func() {
		t := time.NewTimer(s.opts.CloseTimeout)
		defer t.Stop()
		select {
		case <-c.done:
		case <-t.C:
			ws.Close()
		}
	}()
}

// run dials and then reads until the transport fails or closes.
func (s *Session) run(ctx context.Context, c *connection) {
	ws, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		s.dispatch(func() { s.handleTransportEnd(c, err) })
		return
	}

	s.mu.Lock()
	if c.closing {
		s.mu.Unlock()
		ws.Close()
		s.dispatch(func() { s.handleTransportEnd(c, websocket.ErrCloseSent) })
		return
	}
	c.ws = ws
	s.state = StateOpen
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.dispatch(func() { s.handleOpen(c, ws) })

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.dispatch(func() { s.handleTransportEnd(c, err) })
			return
		}
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
		s.dispatch(func() { s.handleMessage(c, data) })
	}
}

func (s *Session) handleOpen(c *connection, ws *websocket.Conn) {
	s.mu.Lock()
	if s.conn != c || c.closing {
		s.mu.Unlock()
		return
	}
	hs := handshakeFrame{
		T:         frameConnect,
		UserID:    s.userID,
		AccountID: s.accountID,
		Token:     s.token,
		Source:    handshakeSourceAPI,
	}
	s.mu.Unlock()

	s.emit(Event{Name: EventOpen})

	data, _ := json.Marshal(hs)
	if err := c.write(ws, data); err != nil {
		s.failTransport(c, ws, err)
		return
	}
	s.emit(Event{Name: EventInitConnection})
	go s.heartbeat(c, ws)
}

// heartbeat writes a keep-alive frame every HeartbeatInterval until the
// connection is torn down. Ticks while the transport is not open are
// skipped.
func (s *Session) heartbeat(c *connection, ws *websocket.Conn) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		live := s.conn == c && !c.closing
		s.mu.Unlock()
		if !live {
			continue
		}
		if err := c.write(ws, heartbeatFrame); err != nil {
			s.logger.Debug("heartbeat send failed", zap.Error(err))
		}
	}
}

func (s *Session) handleMessage(c *connection, data []byte) {
	s.mu.Lock()
	current := s.conn == c
	s.mu.Unlock()
	if !current {
		return
	}

	var env struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("ignoring undecodable frame", zap.Error(err))
		return
	}

	switch env.T {
	case frameOrderUpdate:
		s.emit(Event{Name: EventOrderUpdate, Update: decodeOrderUpdate(data)})
	case frameConnectAck:
		s.armConfirm(c)
	case frameSubscribeAck:
		s.logger.Debug("order update subscription acknowledged")
	default:
		s.logger.Debug("ignoring frame", zap.String("t", env.T))
	}
}

// armConfirm (re)starts the confirmation timer. connect fires only if the
// acknowledgement stands for ConfirmDelay without teardown or another ack.
func (s *Session) armConfirm(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != c || c.closing {
		return
	}
	if s.confirm != nil {
		s.confirm.Stop()
	}
	s.state = StateAckPending
	s.confirmSeq++
	gen, seq := c.gen, s.confirmSeq
	s.confirm = time.AfterFunc(s.opts.ConfirmDelay, func() {
		s.dispatch(func() { s.confirmConnect(gen, seq) })
	})
}

func (s *Session) confirmConnect(gen, seq uint64) {
	s.mu.Lock()
	if s.conn == nil || s.conn.gen != gen || s.confirmSeq != seq || s.state != StateAckPending {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.confirm = nil
	s.mu.Unlock()

	s.emit(Event{Name: EventConnect})
}

// failTransport reports err and closes a transport that is still open.
func (s *Session) failTransport(c *connection, ws *websocket.Conn, err error) {
	s.mu.Lock()
	if c.closing {
		s.mu.Unlock()
		return
	}
	c.closing = true
	if s.conn == c {
		s.state = StateClosing
	}
	s.mu.Unlock()

	s.emit(Event{Name: EventError, Err: err})
	ws.Close()
}

// handleTransportEnd runs when a dial fails or the read loop stops. Abnormal
// endings of a connection we were not closing are reported as errors first.
func (s *Session) handleTransportEnd(c *connection, err error) {
	s.mu.Lock()
	closing := c.closing
	c.closing = true
	s.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	if !closing && code == websocket.CloseAbnormalClosure {
		s.emit(Event{Name: EventError, Err: err})
	}
	s.emit(Event{Name: EventClose, CloseCode: code})
	s.teardown(c)
}

// teardown releases a connection exactly once and emits disconnect.
func (s *Session) teardown(c *connection) {
	s.mu.Lock()
	if c.tornDown {
		s.mu.Unlock()
		return
	}
	c.tornDown = true
	ws := c.ws
	if s.conn == c {
		s.conn = nil
		s.state = StateIdle
		if s.confirm != nil {
			s.confirm.Stop()
			s.confirm = nil
		}
		s.confirmSeq++
	}
	s.mu.Unlock()

	close(c.done)
	c.cancel()
	if ws != nil {
		ws.Close()
	}
	s.emit(Event{Name: EventDisconnect})
}

func (s *Session) dispatch(fn func()) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	fn()
}

// emit runs the listeners for ev. Callers hold dispatchMu.
func (s *Session) emit(ev Event) {
	s.logger.Debug("event", zap.String("name", string(ev.Name)))
	s.listenersMu.RLock()
	fns := append([]Listener(nil), s.listeners[ev.Name]...)
	s.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
