package coach

// DefaultFeedbackCapacity bounds the feedback queue. A long session must not
// grow memory with elapsed time, so the queue evicts oldest-first past this.
const DefaultFeedbackCapacity = 50

// FeedbackQueue is a bounded, time-ordered, evict-oldest collection of
// feedback items, read by the presentation layer. Items are never mutated
// once pushed. Like the other pipeline pieces it relies on the [Engine] for
// locking.
type FeedbackQueue struct {
	capacity int
	items    []FeedbackItem
}

// NewFeedbackQueue creates a queue bounded at capacity.
// A non-positive capacity selects [DefaultFeedbackCapacity].
func NewFeedbackQueue(capacity int) *FeedbackQueue {
	if capacity <= 0 {
		capacity = DefaultFeedbackCapacity
	}
	return &FeedbackQueue{capacity: capacity}
}

// Push appends item, evicting the oldest item when the queue is full.
func (q *FeedbackQueue) Push(item FeedbackItem) {
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, item)
}

// List returns a copy of the queued items, oldest first.
func (q *FeedbackQueue) List() []FeedbackItem {
	out := make([]FeedbackItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items.
func (q *FeedbackQueue) Len() int {
	return len(q.items)
}
