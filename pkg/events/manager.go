package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit caps how many rows one catch-up replay may deliver. A client
// that missed more than this gets a catchup.overflow message and is expected
// to reload through the REST API instead of paging catch-up requests.
const catchupLimit = 200

// listenTimeout bounds the LISTEN round-trip issued when a channel gains its
// first subscriber. A wedged listener connection must not hold the client's
// read loop hostage.
const listenTimeout = 10 * time.Second

// CatchupEvent is one persisted event row replayed during catch-up.
type CatchupEvent struct {
	ID      int
	Payload map[string]interface{}
}

// CatchupQuerier reads persisted events newer than a cursor for one channel.
// Implemented by EventServiceAdapter.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error)
}

// ConnectionManager owns this replica's WebSocket clients and their channel
// subscriptions, and fans broadcast payloads out to subscribers. One instance
// per process.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection         // connection id → connection
	subs  map[string]map[string]struct{} // channel → connection ids

	catchup CatchupQuerier

	listenerMu sync.RWMutex
	listener   *NotifyListener // wired after construction via SetListener

	writeTimeout time.Duration
}

// Connection is one WebSocket client.
//
// channels is deliberately unguarded: every access happens on the goroutine
// running HandleConnection's read loop, including the deferred teardown.
// Any future cross-goroutine mutation (say, an admin disconnect) must add a
// mutex here first.
type Connection struct {
	ID       string
	Conn     *websocket.Conn
	channels map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewConnectionManager builds a manager. The querier may be nil, which
// disables catch-up replay.
func NewConnectionManager(catchup CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		conns:        make(map[string]*Connection),
		subs:         make(map[string]map[string]struct{}),
		catchup:      catchup,
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NotifyListener used for dynamic LISTEN/UNLISTEN.
// Called once at startup; the manager and listener reference each other.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	m.listener = l
	m.listenerMu.Unlock()
}

// HandleConnection runs one client's session: greet, then read and dispatch
// messages until the socket closes. The WS handler calls this after the
// upgrade and it blocks for the connection's lifetime.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:       uuid.New().String(),
		Conn:     conn,
		channels: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	m.track(c)
	defer m.untrack(c)

	m.writeControl(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return // closed or broken; teardown runs via defer
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.dispatch(ctx, c, &msg)
	}
}

// Broadcast delivers a payload to every connection subscribed to channel.
// Connection pointers are snapshotted first so slow writes (each bounded by
// writeTimeout) never stall registration or other broadcasts.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.mu.RLock()
	ids := m.subs[channel]
	targets := make([]*Connection, 0, len(ids))
	for id := range ids {
		if c, ok := m.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := m.write(c, event); err != nil {
			slog.Warn("Failed to send to WebSocket client", "connection_id", c.ID, "error", err)
		}
	}
}

// ActiveConnections reports how many clients this replica currently serves.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// subscriberCount lets tests poll for subscription state instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

func (m *ConnectionManager) dispatch(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if !ValidChannel(msg.Channel) {
			m.writeControl(c, map[string]string{
				"type":    "error",
				"message": "channel must be \"cases\" or \"case:{case_id}\"",
			})
			return
		}
		if err := m.subscribe(c, msg.Channel); err != nil {
			m.writeControl(c, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": "failed to subscribe to channel",
			})
			return
		}
		m.writeControl(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Replay everything the subscriber missed before it joined.
		m.replay(ctx, c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			m.writeControl(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "catchup":
		if !ValidChannel(msg.Channel) {
			m.writeControl(c, map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		if msg.LastEventID != nil {
			m.replay(ctx, c, msg.Channel, *msg.LastEventID)
		}

	case "ping":
		m.writeControl(c, map[string]string{"type": "pong"})
	}
}

// subscribe records the subscription and, for a channel's first subscriber,
// issues a synchronous LISTEN. Synchronous matters: the auto catch-up that
// follows must run with LISTEN already active, or events published between
// the replay and the LISTEN would be lost. A LISTEN failure is returned so
// the caller reports subscription.error rather than a false confirmation.
func (m *ConnectionManager) subscribe(c *Connection, channel string) error {
	m.mu.Lock()
	first := false
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[string]struct{})
		first = true
	}
	m.subs[channel][c.ID] = struct{}{}
	m.mu.Unlock()

	if first {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, done := context.WithTimeout(context.Background(), listenTimeout)
			defer done()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("Failed to LISTEN on channel", "channel", channel, "error", err)
				m.rollbackListen(c, channel)
				return fmt.Errorf("LISTEN on channel %s: %w", channel, err)
			}
		}
	}

	c.channels[channel] = struct{}{}
	return nil
}

// rollbackListen tears a channel down after a failed LISTEN and informs
// every other subscriber that joined while the LISTEN was in flight.
//
// Those late joiners saw the channel entry already present, skipped the
// LISTEN, and were confirmed, yet no PG subscription exists for them. They
// may therefore observe confirmed → replayed events → subscription.error;
// clients must treat subscription.error as authoritative, drop what they
// received for the channel, and re-subscribe with back-off or fall back to
// REST polling.
//
// A connection may keep a stale entry in c.channels afterwards. Harmless:
// Broadcast consults m.subs (now cleared) and the teardown paths tolerate
// channels that no longer exist.
func (m *ConnectionManager) rollbackListen(triggering *Connection, channel string) {
	m.mu.Lock()
	var affected []string
	for id := range m.subs[channel] {
		if id != triggering.ID {
			affected = append(affected, id)
		}
	}
	delete(m.subs, channel)
	victims := make([]*Connection, 0, len(affected))
	for _, id := range affected {
		if c, ok := m.conns[id]; ok {
			victims = append(victims, c)
		}
	}
	m.mu.Unlock()

	for _, c := range victims {
		slog.Warn("Removing orphaned subscriber after LISTEN failure",
			"connection_id", c.ID, "channel", channel)
		m.writeControl(c, map[string]string{
			"type":    "subscription.error",
			"channel": channel,
			"message": "channel listen failed; subscription removed",
		})
	}
}

// unsubscribe drops the subscription and, when the last subscriber leaves,
// releases the PG LISTEN. The UNLISTEN happens on a goroutine that first
// re-checks whether the channel was re-subscribed in the meantime, so a
// quick unsubscribe/resubscribe cycle cannot strand an active subscription
// without its LISTEN.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.mu.Lock()
	last := false
	if ids, ok := m.subs[channel]; ok {
		delete(ids, c.ID)
		if len(ids) == 0 {
			delete(m.subs, channel)
			last = true
		}
	}
	m.mu.Unlock()

	if last {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			go func() {
				m.mu.RLock()
				_, resubscribed := m.subs[channel]
				m.mu.RUnlock()
				if resubscribed {
					return
				}
				if err := l.Unsubscribe(context.Background(), channel); err != nil {
					slog.Error("Failed to UNLISTEN channel", "channel", channel, "error", err)
				}
			}()
		}
	}

	delete(c.channels, channel)
}

// replay streams persisted events newer than sinceID to one client, oldest
// first. The stored payload lacks db_event_id (it is injected into the
// NOTIFY copy at publish time), so the row id is added here for cursor
// tracking. Query failures are logged and swallowed; the live stream keeps
// working.
func (m *ConnectionManager) replay(ctx context.Context, c *Connection, channel string, sinceID int) {
	if m.catchup == nil {
		return
	}

	// One extra row detects overflow.
	rows, err := m.catchup.GetCatchupEvents(ctx, channel, sinceID, catchupLimit+1)
	if err != nil {
		slog.Error("Catchup query failed", "channel", channel, "error", err)
		return
	}
	overflow := len(rows) > catchupLimit
	if overflow {
		rows = rows[:catchupLimit]
	}

	for _, row := range rows {
		row.Payload["db_event_id"] = row.ID
		data, err := json.Marshal(row.Payload)
		if err != nil {
			continue
		}
		if err := m.write(c, data); err != nil {
			slog.Warn("Failed to send catchup event", "connection_id", c.ID, "error", err)
			return
		}
	}

	if overflow {
		m.writeControl(c, map[string]interface{}{
			"type":     "catchup.overflow",
			"channel":  channel,
			"has_more": true,
		})
	}
}

func (m *ConnectionManager) track(c *Connection) {
	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()
}

// untrack removes the connection and every subscription it held.
func (m *ConnectionManager) untrack(c *Connection) {
	for channel := range c.channels {
		m.unsubscribe(c, channel)
	}

	m.mu.Lock()
	delete(m.conns, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// writeControl marshals and sends a protocol message to one client.
func (m *ConnectionManager) writeControl(c *Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.write(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

// write sends raw bytes under the per-connection write timeout.
func (m *ConnectionManager) write(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
