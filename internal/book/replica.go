// Package book maintains per-exchange order-book replicas fed by streaming
// exchange connections, including the reconnect and heartbeat lifecycle.
package book

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// FeedConn is a live streaming connection to one exchange's book feed. The
// exchange adapter owns transport mechanics (framing, pings, decoding); the
// replica owns retry policy and book state.
type FeedConn interface {
	// ReadDelta blocks until the next decoded book update or a transport
	// error. It must honor ctx cancellation.
	ReadDelta(ctx context.Context) (domain.BookDelta, error)
	Close() error
}

// FeedDialer opens feed connections for one exchange.
type FeedDialer interface {
	Exchange() string
	Dial(ctx context.Context, symbol string) (FeedConn, error)
}

// Options tunes a replica's heartbeat and reconnect behavior.
type Options struct {
	// HeartbeatTimeout is the silence interval after which a heartbeat is
	// considered missed. Zero means 5s.
	HeartbeatTimeout time.Duration
	// MissedHeartbeatLimit is the number of consecutive misses that forces a
	// reconnect. The first miss marks the replica Degraded. Zero means 3.
	MissedHeartbeatLimit int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = 5 * time.Second
	}
	if out.MissedHeartbeatLimit <= 0 {
		out.MissedHeartbeatLimit = 3
	}
	if out.ReconnectBase <= 0 {
		out.ReconnectBase = 500 * time.Millisecond
	}
	if out.ReconnectMax <= 0 {
		out.ReconnectMax = 30 * time.Second
	}
	return out
}

// Replica owns a single exchange/symbol's live order book. It applies raw
// deltas from a FeedConn into a held snapshot, hands out immutable copies of
// that snapshot, and runs the connection state machine.
type Replica struct {
	dialer FeedDialer
	symbol string
	opts   Options
	log    *slog.Logger

	mu          sync.RWMutex
	state       domain.ConnectionState
	snap        domain.OrderBookSnapshot
	hasData     bool
	missed      int
	lastMsgAt   time.Time
	nextRetryAt time.Time
	callbacks   []func(domain.OrderBookSnapshot)
	cancel      context.CancelFunc

	backoff Backoff
}

// NewReplica builds a replica for one exchange/symbol pair. Call Run to
// start it.
func NewReplica(dialer FeedDialer, symbol string, opts Options, logger *slog.Logger) *Replica {
	o := opts.withDefaults()
	return &Replica{
		dialer:  dialer,
		symbol:  symbol,
		opts:    o,
		log:     logger.With(slog.String("component", "book_replica"), slog.String("exchange", dialer.Exchange()), slog.String("symbol", symbol)),
		state:   domain.ConnConnecting,
		backoff: Backoff{Base: o.ReconnectBase, Max: o.ReconnectMax},
	}
}

// Subscribe registers a callback invoked after every applied delta with a
// copy of the new snapshot. Callbacks run on the replica's update path and
// must not block; hand the snapshot off to a channel or queue instead.
func (r *Replica) Subscribe(fn func(domain.OrderBookSnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Latest returns a copy of the current snapshot. ok is false before the
// first delta has been applied.
func (r *Replica) Latest() (snap domain.OrderBookSnapshot, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasData {
		return domain.OrderBookSnapshot{}, false
	}
	return copySnapshot(r.snap), true
}

// Usable reports whether the connection state permits consuming snapshots.
// Reconnecting and Closed mean no usable data regardless of snapshot age.
func (r *Replica) Usable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Usable()
}

// IsFresh reports whether the replica holds a usable snapshot no older than
// maxAge.
func (r *Replica) IsFresh(maxAge time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasData || !r.state.Usable() {
		return false
	}
	return time.Since(r.snap.Timestamp) <= maxAge
}

// Status returns a point-in-time view of the connection for status reports.
func (r *Replica) Status() domain.ConnStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.ConnStatus{
		Exchange:         r.dialer.Exchange(),
		Symbol:           r.symbol,
		State:            r.state,
		MissedHeartbeats: r.missed,
		ReconnectAttempt: r.backoff.Attempt(),
		NextRetryAt:      r.nextRetryAt,
		LastMessageAt:    r.lastMsgAt,
	}
}

func (r *Replica) setState(s domain.ConnectionState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Close transitions the replica to Closed and stops Run. It is safe to call
// more than once.
func (r *Replica) Close() {
	r.mu.Lock()
	cancel := r.cancel
	r.state = domain.ConnClosed
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run connects and maintains the feed until ctx is cancelled or Close is
// called, reconnecting with backoff on every transport or heartbeat failure.
func (r *Replica) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.state == domain.ConnClosed {
		r.mu.Unlock()
		return nil
	}
	r.cancel = cancel
	r.mu.Unlock()

	for {
		conn, err := r.dialer.Dial(ctx, r.symbol)
		if err != nil {
			if ctx.Err() != nil {
				r.setState(domain.ConnClosed)
				return nil
			}
			r.log.Warn("feed dial failed", slog.Any("error", err))
			if err := r.waitRetry(ctx); err != nil {
				r.setState(domain.ConnClosed)
				return nil
			}
			continue
		}

		err = r.session(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			r.setState(domain.ConnClosed)
			return nil
		}
		r.log.Warn("feed session ended", slog.Any("error", err))
		if err := r.waitRetry(ctx); err != nil {
			r.setState(domain.ConnClosed)
			return nil
		}
	}
}

// waitRetry sleeps for the next backoff interval, publishing the retry time
// through Status. Returns ctx.Err() when cancelled.
func (r *Replica) waitRetry(ctx context.Context) error {
	delay := r.backoff.Next()

	r.mu.Lock()
	r.state = domain.ConnReconnecting
	r.nextRetryAt = time.Now().Add(delay)
	attempt := r.backoff.Attempt()
	r.mu.Unlock()

	r.log.Info("reconnecting",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// session drains one connection until a transport error or heartbeat
// failure. The reader runs in its own goroutine so heartbeat ticks are
// observed even while ReadDelta blocks.
func (r *Replica) session(ctx context.Context, conn FeedConn) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas := make(chan domain.BookDelta, 16)
	errs := make(chan error, 1)
	go func() {
		for {
			d, err := conn.ReadDelta(sessCtx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case deltas <- d:
			case <-sessCtx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.opts.HeartbeatTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return fmt.Errorf("read delta: %w", err)
		case d := <-deltas:
			r.apply(d)
		case <-ticker.C:
			if miss := r.recordHeartbeat(); miss >= r.opts.MissedHeartbeatLimit {
				return fmt.Errorf("%w: %d consecutive misses", domain.ErrHeartbeatLost, miss)
			}
		}
	}
}

// recordHeartbeat checks for silence since the last message and returns the
// updated consecutive-miss count. The first miss degrades the connection.
func (r *Replica) recordHeartbeat() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastMsgAt) <= r.opts.HeartbeatTimeout {
		r.missed = 0
		return 0
	}
	r.missed++
	if r.state == domain.ConnConnected {
		r.state = domain.ConnDegraded
		r.log.Warn("heartbeat missed, connection degraded", slog.Int("missed", r.missed))
	}
	return r.missed
}

// apply merges a delta into the held snapshot and notifies subscribers with
// a copy of the result.
func (r *Replica) apply(d domain.BookDelta) {
	r.mu.Lock()

	if r.state != domain.ConnConnected && r.state != domain.ConnClosed {
		r.log.Info("feed connected", slog.String("prev_state", r.state.String()))
		r.state = domain.ConnConnected
		r.backoff.Reset()
	}
	r.missed = 0
	r.lastMsgAt = time.Now()

	if d.Snapshot || !r.hasData {
		r.snap = domain.OrderBookSnapshot{
			Exchange: r.dialer.Exchange(),
			Symbol:   r.symbol,
			Bids:     sortLevels(d.Bids, true),
			Asks:     sortLevels(d.Asks, false),
		}
	} else {
		r.snap.Bids = mergeLevels(r.snap.Bids, d.Bids, true)
		r.snap.Asks = mergeLevels(r.snap.Asks, d.Asks, false)
	}

	// Timestamps are strictly monotonic per stream even when the exchange
	// repeats or reorders event times.
	ts := d.Timestamp
	if ts.IsZero() {
		ts = r.lastMsgAt
	}
	if !ts.After(r.snap.Timestamp) {
		ts = r.snap.Timestamp.Add(time.Nanosecond)
	}
	r.snap.Timestamp = ts
	r.hasData = true

	snap := copySnapshot(r.snap)
	callbacks := r.callbacks
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(snap)
	}
}

// copySnapshot clones the level slices so readers never observe a torn or
// later-mutated book.
func copySnapshot(s domain.OrderBookSnapshot) domain.OrderBookSnapshot {
	out := s
	out.Bids = append([]domain.PriceLevel(nil), s.Bids...)
	out.Asks = append([]domain.PriceLevel(nil), s.Asks...)
	return out
}

// sortLevels returns a sorted copy of levels, dropping zero-size entries.
// Bids sort descending by price, asks ascending.
func sortLevels(levels []domain.PriceLevel, desc bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size > 0 {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// mergeLevels applies delta updates to a sorted side: size zero removes the
// price level, nonzero upserts it. The side stays sorted.
func mergeLevels(side, updates []domain.PriceLevel, desc bool) []domain.PriceLevel {
	for _, u := range updates {
		idx := sort.Search(len(side), func(i int) bool {
			if desc {
				return side[i].Price <= u.Price
			}
			return side[i].Price >= u.Price
		})
		found := idx < len(side) && side[idx].Price == u.Price
		switch {
		case u.Size <= 0 && found:
			side = append(side[:idx], side[idx+1:]...)
		case u.Size > 0 && found:
			side[idx].Size = u.Size
		case u.Size > 0:
			side = append(side, domain.PriceLevel{})
			copy(side[idx+1:], side[idx:])
			side[idx] = u
		}
	}
	return side
}
