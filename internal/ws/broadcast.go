package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/session"
	"github.com/appleblox/gamewatch/internal/supervisor"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans bus events and session snapshots out to websocket
// clients. Events are batched for throttle before being written.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	store   *session.Store
	status  func() session.Session
	privacy *session.PrivacyFilter
	logger  *slog.Logger

	throttle       time.Duration
	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
	seq            atomic.Uint64

	flushMu    sync.Mutex
	pending    []rules.Event
	flushTimer *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns <= 0 means no
// connection limit.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		store:    store,
		privacy:  &session.PrivacyFilter{},
		logger:   slog.Default().With("component", "ws"),
		throttle: throttle,
		stop:     make(chan struct{}),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) SetLogger(logger *slog.Logger) {
	b.logger = logger.With("component", "ws")
}

// SetStatusSource sets where the current session in snapshots comes from.
func (b *Broadcaster) SetStatusSource(status func() session.Session) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

func (b *Broadcaster) SetPrivacyFilter(f *session.PrivacyFilter) {
	b.mu.Lock()
	b.privacy = f
	b.mu.Unlock()
}

func (b *Broadcaster) filter() *session.PrivacyFilter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.privacy == nil {
		return &session.PrivacyFilter{}
	}
	return b.privacy
}

// FilterSessions applies the privacy filter to sessions.
func (b *Broadcaster) FilterSessions(sessions []session.Session) []session.Session {
	return b.filter().FilterSlice(sessions)
}

// Snapshot returns the masked current session and history.
func (b *Broadcaster) Snapshot() SnapshotPayload {
	b.mu.RLock()
	status := b.status
	b.mu.RUnlock()

	f := b.filter()
	p := SnapshotPayload{Current: session.Session{State: session.Idle}}
	if status != nil {
		p.Current = f.Apply(status())
	}
	if b.store != nil {
		p.Sessions = f.FilterSlice(b.store.GetAll())
	}
	if p.Sessions == nil {
		p.Sessions = []session.Session{}
	}
	return p
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	// The snapshot is queued before registration so it is always the
	// first message a client sees.
	if data, err := b.encode(MsgSnapshot, b.Snapshot()); err == nil {
		c.send <- data
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Handle is a bus.Handler that queues ev for the next flush.
func (b *Broadcaster) Handle(ev rules.Event) error {
	b.QueueEvent(ev)
	return nil
}

func (b *Broadcaster) QueueEvent(ev rules.Event) {
	ev = b.maskEvent(ev)

	b.flushMu.Lock()
	b.pending = append(b.pending, ev)
	if b.throttle <= 0 {
		b.flushMu.Unlock()
		b.flush()
		return
	}
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
	b.flushMu.Unlock()
}

// maskEvent applies the privacy filter to the payload of lifecycle
// events. Classified log events carry raw log text and pass unchanged.
func (b *Broadcaster) maskEvent(ev rules.Event) rules.Event {
	f := b.filter()
	if f.IsNoop() || !supervisor.Lifecycle(ev.Name) {
		return ev
	}
	n, err := supervisor.ParseNotice(ev)
	if err != nil {
		return ev
	}
	n.SessionID = f.SessionID(n.SessionID)
	n.PID = f.PID(n.PID)
	n.Path = f.LogPath(n.Path)
	n.TargetURL = f.TargetURL(n.TargetURL)
	data, err := json.Marshal(n)
	if err != nil {
		return ev
	}
	return rules.Event{Name: ev.Name, RawData: string(data)}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	events := b.pending
	b.pending = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(events) == 0 {
		return
	}
	b.broadcast(MsgEvents, EventsPayload{Events: events})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(MsgSnapshot, b.Snapshot())
		}
	}
}

// Stop ends the snapshot loop, drops pending events and disconnects every
// client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.pending = nil
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}

func (b *Broadcaster) encode(t MessageType, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{Type: t, Seq: b.seq.Add(1), Payload: payload})
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	data, err := b.encode(t, payload)
	if err != nil {
		b.logger.Error("broadcast marshal error", "error", err)
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		b.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr())
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
