package book

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type fakeConn struct {
	deltas chan domain.BookDelta
	fail   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		deltas: make(chan domain.BookDelta, 16),
		fail:   make(chan error, 1),
	}
}

func (c *fakeConn) ReadDelta(ctx context.Context) (domain.BookDelta, error) {
	select {
	case d := <-c.deltas:
		return d, nil
	case err := <-c.fail:
		return domain.BookDelta{}, err
	case <-ctx.Done():
		return domain.BookDelta{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

type fakeDialer struct {
	conns chan *fakeConn
	dials atomic.Int32
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	d := &fakeDialer{conns: make(chan *fakeConn, len(conns))}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *fakeDialer) Exchange() string { return "fakex" }

func (d *fakeDialer) Dial(ctx context.Context, symbol string) (FeedConn, error) {
	d.dials.Add(1)
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startReplica(t *testing.T, dialer FeedDialer, opts Options) *Replica {
	t.Helper()
	r := NewReplica(dialer, "BTCUSDT", opts, testLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(context.Background())
	}()
	t.Cleanup(func() {
		r.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("replica did not stop")
		}
	})
	return r
}

func TestReplicaAppliesSnapshotThenDeltas(t *testing.T) {
	conn := newFakeConn()
	r := startReplica(t, newFakeDialer(conn), Options{})

	conn.deltas <- domain.BookDelta{
		Snapshot: true,
		Bids:     []domain.PriceLevel{{Price: 100.0, Size: 2}, {Price: 99.5, Size: 1}},
		Asks:     []domain.PriceLevel{{Price: 100.5, Size: 3}, {Price: 101.0, Size: 4}},
	}

	require.Eventually(t, func() bool {
		_, ok := r.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	snap, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, "fakex", snap.Exchange)
	assert.Equal(t, 100.0, snap.BestBid())
	assert.Equal(t, 100.5, snap.BestAsk())
	assert.True(t, r.Usable())

	// Upsert a bid, remove an ask, add a new best ask.
	conn.deltas <- domain.BookDelta{
		Bids: []domain.PriceLevel{{Price: 100.0, Size: 5}},
		Asks: []domain.PriceLevel{{Price: 100.5, Size: 0}, {Price: 100.25, Size: 1.5}},
	}

	require.Eventually(t, func() bool {
		s, _ := r.Latest()
		return s.BestAsk() == 100.25
	}, time.Second, 5*time.Millisecond)

	snap, _ = r.Latest()
	assert.Equal(t, []domain.PriceLevel{{Price: 100.0, Size: 5}, {Price: 99.5, Size: 1}}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 100.25, Size: 1.5}, {Price: 101.0, Size: 4}}, snap.Asks)
}

func TestReplicaTimestampsStrictlyIncrease(t *testing.T) {
	conn := newFakeConn()
	r := startReplica(t, newFakeDialer(conn), Options{})

	ts := time.Now()
	conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}, Timestamp: ts}
	require.Eventually(t, func() bool {
		_, ok := r.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)
	first, _ := r.Latest()

	// Same event time again; the applied timestamp must still advance.
	conn.deltas <- domain.BookDelta{Bids: []domain.PriceLevel{{Price: 1, Size: 2}}, Timestamp: ts}
	require.Eventually(t, func() bool {
		s, _ := r.Latest()
		return s.Bids[0].Size == 2
	}, time.Second, 5*time.Millisecond)

	second, _ := r.Latest()
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestReplicaSnapshotCopyOnRead(t *testing.T) {
	conn := newFakeConn()
	r := startReplica(t, newFakeDialer(conn), Options{})

	conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 10, Size: 1}}}
	require.Eventually(t, func() bool {
		_, ok := r.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	snap, _ := r.Latest()
	snap.Bids[0].Price = -1

	again, _ := r.Latest()
	assert.Equal(t, 10.0, again.Bids[0].Price)
}

func TestReplicaReconnectsWithNewConnection(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := newFakeDialer(first, second)
	r := startReplica(t, dialer, Options{ReconnectBase: 5 * time.Millisecond, ReconnectMax: 20 * time.Millisecond})

	first.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}}
	require.Eventually(t, func() bool { return r.Usable() }, time.Second, 5*time.Millisecond)

	first.fail <- errors.New("connection reset")

	require.Eventually(t, func() bool {
		return dialer.dials.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	second.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 2, Size: 1}}}
	require.Eventually(t, func() bool {
		s, ok := r.Latest()
		return ok && s.BestBid() == 2 && r.Usable()
	}, time.Second, 5*time.Millisecond)
}

func TestReplicaNotFreshWhileReconnecting(t *testing.T) {
	conn := newFakeConn()
	// Long backoff keeps the replica in Reconnecting during assertions.
	r := startReplica(t, newFakeDialer(conn), Options{ReconnectBase: time.Minute, ReconnectMax: time.Minute})

	conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}}
	require.Eventually(t, func() bool { return r.IsFresh(time.Minute) }, time.Second, 5*time.Millisecond)

	conn.fail <- errors.New("connection reset")

	require.Eventually(t, func() bool {
		return r.Status().State == domain.ConnReconnecting
	}, time.Second, 5*time.Millisecond)

	// Snapshot is seconds old at most, yet it must not count as fresh.
	assert.False(t, r.IsFresh(time.Minute))
	assert.False(t, r.Usable())
	_, ok := r.Latest()
	assert.True(t, ok, "last data remains readable even when unusable")
}

func TestReplicaDegradesOnHeartbeatSilence(t *testing.T) {
	conn := newFakeConn()
	r := startReplica(t, newFakeDialer(conn), Options{
		HeartbeatTimeout:     20 * time.Millisecond,
		MissedHeartbeatLimit: 100,
	})

	conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}}
	require.Eventually(t, func() bool {
		return r.Status().State == domain.ConnConnected
	}, time.Second, 5*time.Millisecond)

	// Silence long enough for a missed heartbeat.
	require.Eventually(t, func() bool {
		return r.Status().State == domain.ConnDegraded
	}, time.Second, 5*time.Millisecond)
	assert.True(t, r.Usable(), "degraded data is still usable")

	// Traffic resumes: back to Connected.
	conn.deltas <- domain.BookDelta{Bids: []domain.PriceLevel{{Price: 1, Size: 2}}}
	require.Eventually(t, func() bool {
		return r.Status().State == domain.ConnConnected
	}, time.Second, 5*time.Millisecond)
}

func TestReplicaHeartbeatFailureForcesReconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := newFakeDialer(first, second)
	r := startReplica(t, dialer, Options{
		HeartbeatTimeout:     10 * time.Millisecond,
		MissedHeartbeatLimit: 2,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectMax:         20 * time.Millisecond,
	})

	first.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}}

	require.Eventually(t, func() bool {
		return dialer.dials.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	second.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 3, Size: 1}}}
	require.Eventually(t, func() bool {
		s, ok := r.Latest()
		return ok && s.BestBid() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestReplicaClosesOnContextCancel(t *testing.T) {
	conn := newFakeConn()
	r := NewReplica(newFakeDialer(conn), "BTCUSDT", Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: 1, Size: 1}}}
	require.Eventually(t, func() bool { return r.Usable() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, domain.ConnClosed, r.Status().State)
	assert.False(t, r.Usable())
}

func TestReplicaCallbackReceivesEveryAppliedDelta(t *testing.T) {
	conn := newFakeConn()
	r := startReplica(t, newFakeDialer(conn), Options{})

	var count atomic.Int32
	r.Subscribe(func(s domain.OrderBookSnapshot) {
		count.Add(1)
	})

	for i := 1; i <= 3; i++ {
		conn.deltas <- domain.BookDelta{Snapshot: true, Bids: []domain.PriceLevel{{Price: float64(i), Size: 1}}}
	}

	require.Eventually(t, func() bool {
		return count.Load() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestMergeLevelsInsertsSorted(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Size: 1}, {Price: 102, Size: 1}}
	out := mergeLevels(asks, []domain.PriceLevel{{Price: 101, Size: 2}, {Price: 99, Size: 3}}, false)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 99, Size: 3}, {Price: 100, Size: 1}, {Price: 101, Size: 2}, {Price: 102, Size: 1},
	}, out)

	bids := []domain.PriceLevel{{Price: 102, Size: 1}, {Price: 100, Size: 1}}
	out = mergeLevels(bids, []domain.PriceLevel{{Price: 101, Size: 2}, {Price: 100, Size: 0}}, true)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 102, Size: 1}, {Price: 101, Size: 2},
	}, out)
}

func TestSortLevelsDropsZeroSizes(t *testing.T) {
	out := sortLevels([]domain.PriceLevel{
		{Price: 3, Size: 0}, {Price: 1, Size: 1}, {Price: 2, Size: 2},
	}, true)
	assert.Equal(t, []domain.PriceLevel{{Price: 2, Size: 2}, {Price: 1, Size: 1}}, out)
}
