package scanner

import (
	"sync"
	"sync/atomic"
)

// workQueue is a bounded channel plus a count of items that are queued or in
// progress. The channel is closed when that count drops to zero, which is
// how workers learn that no more work is coming.
type workQueue struct {
	ch        chan *workItem
	pending   atomic.Int64
	closeOnce sync.Once
}

func newWorkQueue(size int) *workQueue {
	if size < 1 {
		size = 1
	}
	return &workQueue{ch: make(chan *workItem, size)}
}

// add registers an item before it is queued or run.
func (q *workQueue) add() { q.pending.Add(1) }

// done marks a registered item finished.
func (q *workQueue) done() {
	if q.pending.Add(-1) == 0 {
		q.closeOnce.Do(func() { close(q.ch) })
	}
}

// offer queues item without blocking. It reports false when the queue is
// full and the caller has to run the item itself.
func (q *workQueue) offer(item *workItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

func (q *workQueue) depth() int    { return len(q.ch) }
func (q *workQueue) capacity() int { return cap(q.ch) }
