package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// notifyPollInterval is how long one WaitForNotification call may block
// before the loop returns to service queued LISTEN/UNLISTEN statements.
const notifyPollInterval = 100 * time.Millisecond

// sqlRequest carries a LISTEN/UNLISTEN statement into the receive loop,
// which is the only goroutine allowed to touch the pgx connection.
type sqlRequest struct {
	stmt  string
	reply chan error
}

// NotifyListener holds one dedicated PostgreSQL connection per replica,
// LISTENs on the case channels local clients care about, and hands every
// NOTIFY payload to the ConnectionManager for fan-out. It is how events
// published by another replica reach this replica's WebSocket clients.
type NotifyListener struct {
	connString string
	manager    *ConnectionManager

	connMu sync.Mutex
	conn   *pgx.Conn

	channelsMu sync.RWMutex
	channels   map[string]bool // channels with an active LISTEN

	// requests funnels LISTEN/UNLISTEN through the receive loop so Exec
	// never races WaitForNotification on the shared connection.
	requests chan sqlRequest
	running  atomic.Bool

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewNotifyListener builds a listener for the given connection string.
func NewNotifyListener(connString string, manager *ConnectionManager) *NotifyListener {
	return &NotifyListener{
		connString: connString,
		manager:    manager,
		channels:   make(map[string]bool),
		requests:   make(chan sqlRequest, 16),
	}
}

// Start opens the dedicated connection and launches the receive loop.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.running.Store(true)

	// The loop gets its own cancellable context so Stop can retire it
	// before the connection is closed underneath it.
	loopCtx, cancel := context.WithCancel(ctx)
	l.stopLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("NotifyListener started")
	return nil
}

// Subscribe establishes a LISTEN for the channel. No-op when already
// listening; errors when the connection was never started.
func (l *NotifyListener) Subscribe(ctx context.Context, channel string) error {
	l.channelsMu.RLock()
	active := l.channels[channel]
	l.channelsMu.RUnlock()
	if active {
		return nil
	}
	if !l.running.Load() {
		return fmt.Errorf("LISTEN connection not established")
	}

	if err := l.roundTrip(ctx, "LISTEN", channel); err != nil {
		return err
	}
	l.channelsMu.Lock()
	l.channels[channel] = true
	l.channelsMu.Unlock()
	slog.Debug("Subscribed to NOTIFY channel", "channel", channel)
	return nil
}

// Unsubscribe drops the LISTEN for the channel. No-op when not listening
// or when the listener never started.
func (l *NotifyListener) Unsubscribe(ctx context.Context, channel string) error {
	l.channelsMu.RLock()
	active := l.channels[channel]
	l.channelsMu.RUnlock()
	if !active || !l.running.Load() {
		return nil
	}

	if err := l.roundTrip(ctx, "UNLISTEN", channel); err != nil {
		return err
	}
	l.channelsMu.Lock()
	delete(l.channels, channel)
	l.channelsMu.Unlock()
	return nil
}

// roundTrip queues one LISTEN/UNLISTEN statement for the receive loop and
// waits for its result.
func (l *NotifyListener) roundTrip(ctx context.Context, verb, channel string) error {
	stmt := verb + " " + pgx.Identifier{channel}.Sanitize()
	req := sqlRequest{stmt: stmt, reply: make(chan error, 1)}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		if err != nil {
			return fmt.Errorf("%s failed: %w", stmt, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiveLoop alternates between servicing queued statements and waiting
// for notifications. Owning the connection exclusively here is what makes
// the pgx usage race-free.
func (l *NotifyListener) receiveLoop(ctx context.Context) {
	for ctx.Err() == nil {
		l.drainRequests(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		// Bounded wait so queued LISTEN/UNLISTEN statements are not
		// starved while the channel is quiet.
		waitCtx, cancel := context.WithTimeout(ctx, notifyPollInterval)
		n, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue // poll expired; go service the queue
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		l.manager.Broadcast(n.Channel, []byte(n.Payload))
	}
}

// drainRequests executes every queued statement. Requests arriving while
// the connection is down are answered with an error immediately; the
// ConnectionManager surfaces that to the subscribing client.
func (l *NotifyListener) drainRequests(ctx context.Context) {
	for {
		select {
		case req := <-l.requests:
			l.connMu.Lock()
			conn := l.conn
			l.connMu.Unlock()
			if conn == nil {
				req.reply <- fmt.Errorf("LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, req.stmt)
			req.reply <- err
		default:
			return
		}
	}
}

// reconnect re-establishes the connection with exponential back-off and
// replays every active LISTEN on the fresh connection.
func (l *NotifyListener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn

		l.channelsMu.RLock()
		for ch := range l.channels {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				slog.Error("Re-LISTEN failed", "channel", ch, "error", err)
			}
		}
		l.channelsMu.RUnlock()

		slog.Info("NotifyListener reconnected")
		return
	}
}

// isListening lets tests poll for LISTEN propagation instead of sleeping.
func (l *NotifyListener) isListening(channel string) bool {
	l.channelsMu.RLock()
	defer l.channelsMu.RUnlock()
	return l.channels[channel]
}

// Stop retires the receive loop, waits for it, then closes the
// connection. Ordering matters: closing first would race the loop's
// WaitForNotification.
func (l *NotifyListener) Stop(ctx context.Context) {
	l.running.Store(false)

	if l.stopLoop != nil {
		l.stopLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
