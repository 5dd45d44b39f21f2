// Package actor implements the command channel primitive shared by the
// service, room, and client actors. Each actor owns a bounded Mailbox and
// consumes exactly one command at a time; callers enqueue commands through
// an awaiting send (blocking on a one-shot reply) or a fire-and-forget send
// that schedules the enqueue on a background goroutine.
//
// State owned by an actor is never locked: ordering is a consequence of
// sequential consumption, not mutex discipline.
package actor

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the bound of an actor's command queue.
const DefaultCapacity = 30

// ErrClosed is returned when a command is enqueued after the receiving
// actor has shut down. Callers treat it as the actor being gone and surface
// a room-not-found / client-closed condition upstream.
var ErrClosed = errors.New("actor: mailbox closed")

// Mailbox is a bounded command queue with a close signal. The zero value is
// not usable; create one with NewMailbox.
type Mailbox[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once

	// Overflow state for Post; guarded by mu. While draining is set, every
	// post goes through the overflow buffer so none can overtake another.
	mu       sync.Mutex
	overflow []T
	draining bool
}

// NewMailbox returns a mailbox with the default capacity.
func NewMailbox[T any]() *Mailbox[T] {
	return NewMailboxSize[T](DefaultCapacity)
}

// NewMailboxSize returns a mailbox with the given capacity.
func NewMailboxSize[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues cmd, blocking while the queue is full. It fails with
// ErrClosed once the mailbox is closed and with the context error if ctx is
// cancelled first.
func (m *Mailbox[T]) Send(ctx context.Context, cmd T) error {
	// Fast-path check so a closed mailbox fails even when buffer space
	// would have been available.
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.ch <- cmd:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post is the fire-and-forget send: the caller never blocks, even when the
// queue is full. While the queue has space the enqueue happens inline; a
// full queue diverts into an overflow buffer drained by a single background
// goroutine, and until that buffer is empty every post joins it, so posts
// are delivered in the order they were made even across the overflow
// window. A post that cannot be delivered is silently dropped; the target
// actor is gone and its state no longer matters to the sender.
func (m *Mailbox[T]) Post(cmd T) {
	select {
	case <-m.done:
		return
	default:
	}

	m.mu.Lock()
	if m.draining {
		m.overflow = append(m.overflow, cmd)
		m.mu.Unlock()
		return
	}
	select {
	case m.ch <- cmd:
		m.mu.Unlock()
		return
	default:
	}
	m.draining = true
	m.overflow = append(m.overflow, cmd)
	m.mu.Unlock()
	go m.drain()
}

// drain delivers overflowed posts one at a time, blocking on queue space.
// It exits once the overflow is empty or the mailbox closes, dropping
// whatever remains.
func (m *Mailbox[T]) drain() {
	for {
		m.mu.Lock()
		if len(m.overflow) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		next := m.overflow[0]
		m.overflow = m.overflow[1:]
		m.mu.Unlock()

		if m.Send(context.Background(), next) != nil {
			m.mu.Lock()
			m.overflow = nil
			m.draining = false
			m.mu.Unlock()
			return
		}
	}
}

// Receive yields the next command. ok is false once the mailbox is closed
// and the queue has drained; the actor loop should then exit.
func (m *Mailbox[T]) Receive() (cmd T, ok bool) {
	select {
	case cmd = <-m.ch:
		return cmd, true
	case <-m.done:
		// Drain commands accepted before the close; they are still
		// processed in order.
		select {
		case cmd = <-m.ch:
			return cmd, true
		default:
			var zero T
			return zero, false
		}
	}
}

// Close marks the mailbox closed. Idempotent. Commands already queued are
// still delivered by Receive before it reports closure.
func (m *Mailbox[T]) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
