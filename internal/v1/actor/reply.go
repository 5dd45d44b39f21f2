package actor

import "context"

// Reply is the one-shot reply channel carried by a command. The actor
// resolves it exactly once; the sender awaits it. Void operations use
// Reply[struct{}].
type Reply[T any] chan T

// NewReply returns a reply channel with room for the single value, so the
// actor never blocks on resolve even if the sender gave up waiting.
func NewReply[T any]() Reply[T] {
	return make(chan T, 1)
}

// Resolve delivers the reply value.
func (r Reply[T]) Resolve(v T) {
	r <- v
}

// Await blocks until the reply arrives or ctx is cancelled.
func (r Reply[T]) Await(ctx context.Context) (T, error) {
	select {
	case v := <-r:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
