// Package broker implements the Subscription Broker: per-job fan-out of
// BatchUpdates to subscribers, backed by a bounded ring buffer so a late
// subscriber can replay recent history before switching to live delivery.
// Publishing is non-blocking — a subscriber whose buffer overflows is
// dropped rather than allowed to stall the job.
package broker

import (
	"errors"
	"sync"

	"github.com/graphling/graphling/pkg/graph"
)

// ControlKind identifies an out-of-band signal delivered alongside batch
// messages on a subscription.
type ControlKind string

// ControlResyncRequired is emitted when a subscriber's requested
// from_sequence falls below the ring floor: the ring no longer holds
// enough history to replay, and the client must re-query the graph store
// for a full snapshot before resuming incremental consumption.
const ControlResyncRequired ControlKind = "resync_required"

// ErrSlowConsumer is recorded on a Subscription that was dropped because
// its outbound buffer overflowed. The job itself is unaffected.
var ErrSlowConsumer = errors.New("broker: slow consumer dropped")

// Message is one item delivered to a subscriber: either a batch (replayed
// or live) or a control signal.
type Message struct {
	Batch   *graph.BatchUpdate
	Control ControlKind
}

// Config tunes ring size and per-subscriber buffering. Zero values fall
// back to the documented defaults.
type Config struct {
	// RingSize caps how many recent batches are retained per job for
	// replay. Default 256.
	RingSize int
	// SubBuffer caps each subscriber's outbound message buffer before it
	// is considered slow and dropped. Default 64.
	SubBuffer int
}

const (
	defaultRingSize  = 256
	defaultSubBuffer = 64
)

func (c Config) withDefaults() Config {
	if c.RingSize <= 0 {
		c.RingSize = defaultRingSize
	}

	if c.SubBuffer <= 0 {
		c.SubBuffer = defaultSubBuffer
	}

	return c
}

// subEntry is one subscriber's delivery channel and terminal error state.
type subEntry struct {
	ch        chan Message
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (e *subEntry) close(err error) {
	e.closeOnce.Do(func() {
		if err != nil {
			e.mu.Lock()
			e.err = err
			e.mu.Unlock()
		}

		close(e.ch)
	})
}

func (e *subEntry) lastErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

// jobTopic is one job's ring buffer and subscriber set.
type jobTopic struct {
	mu sync.Mutex

	ring     []graph.BatchUpdate
	hasFloor bool
	floor    uint64
	lastSeq  uint64

	subs      map[uint64]*subEntry
	nextSubID uint64
}

// snapshotReplay must be called with t.mu held. It returns the buffered
// batches at or after from (nil from means "live only, no replay"), or
// signals resync is required if from has already fallen below the ring
// floor.
func (t *jobTopic) snapshotReplay(from *uint64) (replay []graph.BatchUpdate, resync bool) {
	if from == nil {
		return nil, false
	}

	if t.hasFloor && *from < t.floor {
		return nil, true
	}

	for _, b := range t.ring {
		if b.Sequence >= *from {
			replay = append(replay, b)
		}
	}

	return replay, false
}

// deliver attempts a non-blocking send to subscriber id. On overflow, the
// subscriber is unregistered and its channel closed with ErrSlowConsumer.
// Returns false once the subscriber has been dropped.
func (t *jobTopic) deliver(id uint64, e *subEntry, msg Message) bool {
	select {
	case e.ch <- msg:
		return true
	default:
	}

	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()

	e.close(ErrSlowConsumer)

	return false
}

// Broker fans BatchUpdates out to subscribers, one independent topic per
// job_id.
type Broker struct {
	cfg Config

	mu     sync.Mutex
	topics map[string]*jobTopic
}

// New returns a Broker with no topics yet; topics are created lazily on
// first Publish or Subscribe for a job_id.
func New(cfg Config) *Broker {
	return &Broker{cfg: cfg.withDefaults(), topics: make(map[string]*jobTopic)}
}

func (b *Broker) topicFor(jobID string) *jobTopic {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &jobTopic{subs: make(map[uint64]*subEntry)}
		b.topics[jobID] = t
	}

	return t
}

// Publish appends batch to jobID's ring (evicting the oldest entry once
// RingSize is exceeded) and fans it out live to every current subscriber.
// Delivery is non-blocking: subscribers that can't keep up are dropped,
// never the publisher.
func (b *Broker) Publish(jobID string, batch graph.BatchUpdate) {
	t := b.topicFor(jobID)

	t.mu.Lock()
	t.ring = append(t.ring, batch)
	if len(t.ring) > b.cfg.RingSize {
		t.ring = t.ring[1:]
	}

	if len(t.ring) > 0 {
		t.floor = t.ring[0].Sequence
		t.hasFloor = true
	}

	if batch.Sequence > t.lastSeq {
		t.lastSeq = batch.Sequence
	}

	type target struct {
		id uint64
		e  *subEntry
	}

	targets := make([]target, 0, len(t.subs))
	for id, e := range t.subs {
		targets = append(targets, target{id, e})
	}
	t.mu.Unlock()

	for _, tg := range targets {
		t.deliver(tg.id, tg.e, Message{Batch: &batch})
	}
}

// Subscription is one subscriber's view of a job's batch stream.
type Subscription struct {
	topic *jobTopic
	entry *subEntry
	id    uint64
}

// Messages returns the channel batches and control signals arrive on. It
// is closed when the subscription ends, either voluntarily (Close) or
// because the subscriber was dropped for being slow (Err() returns
// ErrSlowConsumer in that case).
func (s *Subscription) Messages() <-chan Message {
	return s.entry.ch
}

// Err reports why the subscription ended, or nil if it is still open or
// ended voluntarily via Close.
func (s *Subscription) Err() error {
	return s.entry.lastErr()
}

// Close ends the subscription and releases its buffer.
func (s *Subscription) Close() {
	s.topic.mu.Lock()
	delete(s.topic.subs, s.id)
	s.topic.mu.Unlock()

	s.entry.close(nil)
}

// Subscribe registers a subscriber for jobID. If fromSequence is nil, the
// subscriber receives only live batches from this point on. If
// fromSequence is non-nil, every buffered batch with sequence >=
// *fromSequence is replayed first, in order, before live fan-out begins;
// if *fromSequence has already fallen below the ring floor, a
// ControlResyncRequired message is delivered instead of a replay and the
// caller must re-query the graph store for a full snapshot.
func (b *Broker) Subscribe(jobID string, fromSequence *uint64) *Subscription {
	t := b.topicFor(jobID)

	t.mu.Lock()
	replay, resync := t.snapshotReplay(fromSequence)

	e := &subEntry{ch: make(chan Message, b.cfg.SubBuffer)}
	id := t.nextSubID
	t.nextSubID++
	t.subs[id] = e

	// The backlog is queued before t.mu is released, so no live Publish can
	// overtake it; a replay that overflows the buffer drops the subscriber.
	if resync {
		e.ch <- Message{Control: ControlResyncRequired}
	}

	for i := range replay {
		select {
		case e.ch <- Message{Batch: &replay[i]}:
		default:
			delete(t.subs, id)
			t.mu.Unlock()
			e.close(ErrSlowConsumer)

			return &Subscription{topic: t, entry: e, id: id}
		}
	}
	t.mu.Unlock()

	return &Subscription{topic: t, entry: e, id: id}
}

// CloseJob ends every subscription for jobID and discards its ring. Call
// this once a job reaches a terminal state.
func (b *Broker) CloseJob(jobID string) {
	b.mu.Lock()
	t, ok := b.topics[jobID]
	delete(b.topics, jobID)
	b.mu.Unlock()

	if !ok {
		return
	}

	t.mu.Lock()
	entries := make([]*subEntry, 0, len(t.subs))
	for _, e := range t.subs {
		entries = append(entries, e)
	}

	t.subs = make(map[uint64]*subEntry)
	t.mu.Unlock()

	for _, e := range entries {
		e.close(nil)
	}
}

// LastSequence returns the highest sequence number published for jobID,
// or 0 if nothing has been published yet.
func (b *Broker) LastSequence(jobID string) uint64 {
	t := b.topicFor(jobID)

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastSeq
}
