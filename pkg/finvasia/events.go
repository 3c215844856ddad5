package finvasia

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventName identifies a Session event.
type EventName string

// Session events, in the order a healthy connection produces them.
const (
	EventOpen           EventName = "open"
	EventInitConnection EventName = "init_connection"
	EventConnect        EventName = "connect"
	EventOrderUpdate    EventName = "orderUpdate"
	EventError          EventName = "error"
	EventClose          EventName = "close"
	EventDisconnect     EventName = "disconnect"
)

// Event is delivered to listeners. Update is set for EventOrderUpdate, Err
// for EventError and CloseCode for EventClose.
type Event struct {
	Name      EventName
	Update    *OrderUpdate
	Err       error
	CloseCode int
}

// Listener receives session events. Listeners run one at a time and must not
// block; they may call Session methods.
type Listener func(Event)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateAckPending
	StateConnected
	StateClosing
)

var stateNames = [...]string{"idle", "connecting", "open", "ack_pending", "connected", "closing"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// States lists every State in lifecycle order.
func States() []State {
	return []State{StateIdle, StateConnecting, StateOpen, StateAckPending, StateConnected, StateClosing}
}

// OrderUpdate is an "om" frame. Raw holds the frame verbatim.
type OrderUpdate struct {
	OrderNumber     string          `json:"norenordno"`
	UserID          string          `json:"uid"`
	AccountID       string          `json:"actid"`
	Exchange        string          `json:"exch"`
	TradingSymbol   string          `json:"tsym"`
	TransactionType string          `json:"trantype"`
	Quantity        string          `json:"qty"`
	Price           string          `json:"prc"`
	Product         string          `json:"pcode"`
	Status          string          `json:"status"`
	ReportType      string          `json:"reporttype"`
	OrderType       string          `json:"prctyp"`
	Validity        string          `json:"ret"`
	FilledShares    string          `json:"fillshares"`
	AveragePrice    string          `json:"avgprc"`
	RejectReason    string          `json:"rejreason"`
	ExchangeOrderID string          `json:"exchordid"`
	OrderTime       string          `json:"norentm"`
	Remarks         string          `json:"remarks"`
	Raw             json.RawMessage `json:"-"`
}

// decodeOrderUpdate decodes an om frame field by field. Scalars of the wrong
// JSON type keep their literal text and undecodable fields stay empty; Raw
// always carries the frame as received.
func decodeOrderUpdate(data []byte) *OrderUpdate {
	u := &OrderUpdate{Raw: append(json.RawMessage(nil), data...)}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return u
	}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"norenordno", &u.OrderNumber},
		{"uid", &u.UserID},
		{"actid", &u.AccountID},
		{"exch", &u.Exchange},
		{"tsym", &u.TradingSymbol},
		{"trantype", &u.TransactionType},
		{"qty", &u.Quantity},
		{"prc", &u.Price},
		{"pcode", &u.Product},
		{"status", &u.Status},
		{"reporttype", &u.ReportType},
		{"prctyp", &u.OrderType},
		{"ret", &u.Validity},
		{"fillshares", &u.FilledShares},
		{"avgprc", &u.AveragePrice},
		{"rejreason", &u.RejectReason},
		{"exchordid", &u.ExchangeOrderID},
		{"norentm", &u.OrderTime},
		{"remarks", &u.Remarks},
	} {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		*f.dst = scalarText(raw)
	}
	return u
}

func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch t := strings.TrimSpace(string(raw)); {
	case t == "null", strings.HasPrefix(t, "{"), strings.HasPrefix(t, "["):
		return ""
	default:
		return t
	}
}

// Frame tags.
const (
	frameConnect       = "c"
	frameHeartbeat     = "h"
	frameSubscribe     = "o"
	frameConnectAck    = "ck"
	frameOrderUpdate   = "om"
	frameSubscribeAck  = "ok"
	handshakeSourceAPI = "API"
)

type handshakeFrame struct {
	T         string `json:"t"`
	UserID    string `json:"uid"`
	AccountID string `json:"actid"`
	Token     string `json:"susertoken"`
	Source    string `json:"source"`
}

type subscribeFrame struct {
	T         string `json:"t"`
	AccountID string `json:"actid"`
}

var heartbeatFrame = []byte(`{"t":"` + frameHeartbeat + `"}`)
