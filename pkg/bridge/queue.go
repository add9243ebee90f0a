package bridge

// queueCapacity bounds every work queue in the bridge. Producers block
// when a queue is full, which backpressures chat commands instead of
// dropping them.
const queueCapacity = 20

type queue[T any] struct {
	ch chan T
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{ch: make(chan T, queueCapacity)}
}

// Enqueue adds an item, blocking while the queue is full.
func (q *queue[T]) Enqueue(item T) {
	q.ch <- item
}

// TryDequeue removes one item without blocking.
func (q *queue[T]) TryDequeue() (T, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

func (q *queue[T]) Len() int {
	return len(q.ch)
}
