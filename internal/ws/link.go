// Package ws implements the persistent session transport: one live websocket
// per session, typed JSON frame fan-out, heartbeat, and capped reconnection.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/observerhq/observer/pkg/logger"
)

// State is the connection lifecycle state. All isConnected-style booleans
// derive from it.
type State string

const (
	StateConnecting      State = "connecting"
	StateOpen            State = "open"
	StateClosingNormal   State = "closing_normal"
	StateClosingAuthFail State = "closing_auth_failed"
	StateReconnecting    State = "reconnecting"
	StateClosed          State = "closed"
)

const (
	// CloseNormal is the clean, user-initiated close code.
	CloseNormal = websocket.CloseNormalClosure
	// CloseAuthFailed is the server's terminal auth-failure close code.
	CloseAuthFailed = 4001

	heartbeatInterval    = 60 * time.Second
	reconnectBaseDelay   = 3 * time.Second
	reconnectMaxDelay    = 15 * time.Second
	maxReconnectAttempts = 5
	handshakeTimeout     = 10 * time.Second

	// WildcardType subscribes a handler to every inbound frame type.
	WildcardType = "all"
)

var (
	// ErrNotConnected is returned by Send while the link is not open.
	ErrNotConnected = errors.New("ws: not connected")
	// ErrAuthFailed indicates the server closed the connection with the
	// terminal auth-failure code. Never retried.
	ErrAuthFailed = errors.New("ws: authentication failed")
	// ErrRetriesExhausted indicates reconnection gave up after the attempt cap.
	ErrRetriesExhausted = errors.New("ws: reconnect attempts exhausted")
)

// Handler receives one decoded inbound frame. Handlers run synchronously on
// the read loop; inbound volume is low enough that no back-pressure is needed.
type Handler func(data map[string]any)

// TokenProvider supplies the opaque credential embedded in the handshake URL.
type TokenProvider func() string

// Link maintains exactly one live websocket for a session and fans out typed
// inbound frames to subscribers.
type Link struct {
	wsBase string
	tokens TokenProvider
	// endpoint builds the dial URL for a session code.
	endpoint func(sessionCode string) (string, error)

	// reconnectBase/reconnectMax shape the retry backoff; overridable in
	// tests so the cap-then-give-up path runs in milliseconds.
	reconnectBase time.Duration
	reconnectMax  time.Duration

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	state       State
	sessionCode string
	gen         uint64
	attempts    int
	reconnectT  *time.Timer
	heartbeatT  *time.Ticker
	hbStop      chan struct{}

	subMu   sync.Mutex
	nextSub uint64
	subs    map[string]map[uint64]Handler

	stateListener func(State, error)
	// notifyCh serializes listener callbacks so transitions arrive in the
	// order they happened.
	notifyCh chan stateEvent
}

type stateEvent struct {
	fn    func(State, error)
	state State
	err   error
}

// NewSessionLink creates a link for the authenticated classroom endpoint
// `{wsBase}/ws/session/{code}/?token={credential}`.
func NewSessionLink(wsBase string, tokens TokenProvider) *Link {
	l := newLink(wsBase)
	l.tokens = tokens
	l.endpoint = func(code string) (string, error) {
		if code == "" {
			return "", fmt.Errorf("session code missing")
		}
		token := ""
		if tokens != nil {
			token = tokens()
		}
		if token == "" {
			return "", fmt.Errorf("no access token")
		}
		return fmt.Sprintf("%s/ws/session/%s/?token=%s", wsBase, url.PathEscape(code), url.QueryEscape(token)), nil
	}
	return l
}

// NewExecuteLink creates a link for the personal execution endpoint
// `{wsBase}/ws/execute/`, which is not session-authenticated.
func NewExecuteLink(wsBase string) *Link {
	l := newLink(wsBase)
	l.endpoint = func(string) (string, error) {
		return wsBase + "/ws/execute/", nil
	}
	return l
}

func newLink(wsBase string) *Link {
	return &Link{
		wsBase:        wsBase,
		reconnectBase: reconnectBaseDelay,
		reconnectMax:  reconnectMaxDelay,
		state:         StateClosed,
		subs:          make(map[string]map[uint64]Handler),
	}
}

// SetStateListener registers a callback invoked on every state transition,
// delivered in transition order. err is non-nil for terminal failures
// (ErrAuthFailed, ErrRetriesExhausted). Must be set before Connect.
func (l *Link) SetStateListener(fn func(State, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateListener = fn
	if fn != nil && l.notifyCh == nil {
		l.notifyCh = make(chan stateEvent, 32)
		go l.notifyLoop(l.notifyCh)
	}
}

func (l *Link) notifyLoop(ch <-chan stateEvent) {
	for ev := range ch {
		ev.fn(ev.state, ev.err)
	}
}

// Connect opens the link for a session. It fails fast when no credential or
// session identifier is available, and closes any existing connection for a
// different session first.
func (l *Link) Connect(sessionCode string) error {
	target, err := l.endpoint(sessionCode)
	if err != nil {
		logger.Warnf("ws: cannot connect: %v", err)
		return err
	}

	l.mu.Lock()
	if l.conn != nil {
		// Replacing the connection: clean close, no reconnect from the old one.
		l.closeLocked(CloseNormal, "reconnecting")
	}
	l.sessionCode = sessionCode
	l.gen++
	gen := l.gen
	l.setStateLocked(StateConnecting, nil)
	l.mu.Unlock()

	logger.Debugf("ws: connecting session=%q", sessionCode)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			return err
		}
		l.scheduleReconnectLocked()
		return fmt.Errorf("ws: dial failed: %w", err)
	}

	l.mu.Lock()
	if gen != l.gen {
		// A newer Connect/Disconnect superseded this dial.
		l.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	l.conn = conn
	l.attempts = 0
	l.setStateLocked(StateOpen, nil)
	l.startHeartbeatLocked(gen)
	l.mu.Unlock()

	go l.readLoop(conn, gen)
	return nil
}

// Disconnect performs a clean close, cancels any pending reconnect and the
// heartbeat, and clears the session association. Idempotent.
func (l *Link) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.sessionCode = ""
	l.attempts = 0
	if l.reconnectT != nil {
		l.reconnectT.Stop()
		l.reconnectT = nil
	}
	if l.conn != nil {
		l.closeLocked(CloseNormal, "user disconnected")
	}
	if l.state != StateClosed {
		l.setStateLocked(StateClosingNormal, nil)
		l.setStateLocked(StateClosed, nil)
	}
}

// Send marshals a typed frame and writes it. While the link is not open it
// warns and drops the frame: stale commands must not be delivered later, as
// their preconditions may no longer hold.
func (l *Link) Send(frameType string, payload map[string]any) error {
	l.mu.Lock()
	conn := l.conn
	open := l.state == StateOpen
	l.mu.Unlock()

	if !open || conn == nil {
		logger.Warnf("ws: not connected, dropping frame type=%q", frameType)
		return ErrNotConnected
	}

	frame := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		frame[k] = v
	}
	frame["type"] = frameType

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("ws: marshal frame: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ws: write frame: %w", err)
	}
	logger.Tracef("ws: sent frame type=%q", frameType)
	return nil
}

// On subscribes a handler for an exact frame type (or WildcardType for every
// frame) and returns its unsubscribe closure.
func (l *Link) On(frameType string, handler Handler) (unsubscribe func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.nextSub++
	id := l.nextSub
	if l.subs[frameType] == nil {
		l.subs[frameType] = make(map[uint64]Handler)
	}
	l.subs[frameType][id] = handler
	return func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		delete(l.subs[frameType], id)
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsConnected reports whether the link is open.
func (l *Link) IsConnected() bool {
	return l.State() == StateOpen
}

// SessionCode returns the session the link is associated with, if any.
func (l *Link) SessionCode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionCode
}

func (l *Link) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleClose(gen, err)
			return
		}
		l.dispatch(data)
	}
}

// dispatch parses one inbound frame and fans it out. Parse errors are dropped
// and logged.
func (l *Link) dispatch(data []byte) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warnf("ws: dropping unparseable frame: %v", err)
		return
	}
	frameType, _ := frame["type"].(string)
	if frameType == "" {
		logger.Warnf("ws: dropping frame without type")
		return
	}
	logger.Tracef("ws: received frame type=%q", frameType)

	for _, h := range l.handlersFor(frameType) {
		l.invoke(h, frame)
	}
	for _, h := range l.handlersFor(WildcardType) {
		l.invoke(h, frame)
	}
}

// invoke isolates a panicking subscriber so the read loop and the remaining
// subscribers for the frame keep running.
func (l *Link) invoke(h Handler, frame map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ws: subscriber panic: %v", r)
		}
	}()
	h(frame)
}

// handlersFor snapshots the subscriber list so handlers can unsubscribe from
// inside their own callback.
func (l *Link) handlersFor(frameType string) []Handler {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	set := l.subs[frameType]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// handleClose classifies a connection loss and applies the reconnect policy.
func (l *Link) handleClose(gen uint64, err error) {
	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.conn = nil
	l.stopHeartbeatLocked()

	switch code {
	case CloseNormal:
		logger.Debugf("ws: closed normally")
		l.setStateLocked(StateClosingNormal, nil)
		l.setStateLocked(StateClosed, nil)
	case CloseAuthFailed:
		// Terminal: the credential was rejected; retrying cannot help.
		logger.Errorf("ws: authentication failed, not reconnecting")
		l.setStateLocked(StateClosingAuthFail, ErrAuthFailed)
	default:
		logger.Warnf("ws: connection lost (code=%d): %v", code, err)
		l.scheduleReconnectLocked()
	}
}

// scheduleReconnectLocked arms the next reconnect attempt with a linearly
// growing, capped delay. Caller holds l.mu.
func (l *Link) scheduleReconnectLocked() {
	if l.sessionCode == "" {
		l.setStateLocked(StateClosed, nil)
		return
	}
	if l.attempts >= maxReconnectAttempts {
		logger.Errorf("ws: giving up after %d reconnect attempts", l.attempts)
		l.setStateLocked(StateClosed, ErrRetriesExhausted)
		return
	}
	l.attempts++
	delay := l.reconnectDelay(l.attempts)
	l.setStateLocked(StateReconnecting, nil)
	logger.Infof("ws: reconnect attempt %d/%d in %s", l.attempts, maxReconnectAttempts, delay)

	code := l.sessionCode
	gen := l.gen
	if l.reconnectT != nil {
		l.reconnectT.Stop()
	}
	l.reconnectT = time.AfterFunc(delay, func() {
		l.mu.Lock()
		stale := gen != l.gen
		l.mu.Unlock()
		if stale {
			return
		}
		if err := l.Connect(code); err != nil {
			logger.Debugf("ws: reconnect failed: %v", err)
		}
	})
}

// reconnectDelay grows linearly with the attempt number and is capped.
func (l *Link) reconnectDelay(attempt int) time.Duration {
	delay := time.Duration(attempt) * l.reconnectBase
	if delay > l.reconnectMax {
		delay = l.reconnectMax
	}
	return delay
}

// startHeartbeatLocked sends a no-op frame at a fixed interval while open.
// Caller holds l.mu.
func (l *Link) startHeartbeatLocked(gen uint64) {
	l.stopHeartbeatLocked()
	stop := make(chan struct{})
	ticker := time.NewTicker(heartbeatInterval)
	l.heartbeatT = ticker
	l.hbStop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.mu.Lock()
				ok := l.state == StateOpen && l.gen == gen
				l.mu.Unlock()
				if !ok {
					return
				}
				if err := l.Send("heartbeat", nil); err != nil {
					logger.Debugf("ws: heartbeat send failed: %v", err)
				}
			}
		}
	}()
}

func (l *Link) stopHeartbeatLocked() {
	if l.heartbeatT != nil {
		l.heartbeatT.Stop()
		l.heartbeatT = nil
	}
	if l.hbStop != nil {
		close(l.hbStop)
		l.hbStop = nil
	}
}

// closeLocked writes a close frame and drops the connection. Caller holds l.mu.
func (l *Link) closeLocked(code int, reason string) {
	conn := l.conn
	l.conn = nil
	l.stopHeartbeatLocked()
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	l.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	l.writeMu.Unlock()
	_ = conn.Close()
}

func (l *Link) setStateLocked(s State, err error) {
	if l.state == s && err == nil {
		return
	}
	l.state = s
	if l.stateListener == nil {
		return
	}
	// Delivery happens on the notify goroutine, in transition order, so the
	// listener can call back into the link. The send must not block while
	// l.mu is held.
	select {
	case l.notifyCh <- stateEvent{fn: l.stateListener, state: s, err: err}:
	default:
		logger.Warnf("ws: state listener lagging, dropping %s notification", s)
	}
}
