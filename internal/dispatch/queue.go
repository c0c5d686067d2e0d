package dispatch

import (
	"container/heap"
	"math"
	"sync"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// item is a queue entry. seq is a monotonic submission counter: it breaks
// priority ties FIFO and lets a bounced task resume its original position
// when it is pushed back. Bounced entries draw from a separate counter in
// negative space so they stay ahead of normal entries yet remain FIFO
// among themselves.
type item struct {
	task *models.Task
	seq  int64
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(*item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the single priority-ordered feed for all executors. Tasks pop
// in ascending priority value, FIFO on ties. Ready() exposes a wake
// signal so consumers can block instead of polling.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	seq      int64
	frontSeq int64
	ready    chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		frontSeq: math.MinInt64 / 2,
		ready:    make(chan struct{}, 1),
	}
}

// Push adds a task and signals any blocked consumer.
func (q *Queue) Push(task *models.Task) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &item{task: task, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

// PushFront re-inserts a task ahead of every pending entry of the same
// priority, used when a popped task could not be assigned. Tasks bounced
// repeatedly keep their relative order.
func (q *Queue) PushFront(task *models.Task) {
	q.mu.Lock()
	q.frontSeq++
	heap.Push(&q.items, &item{task: task, seq: q.frontSeq})
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the highest-priority task, or nil if empty.
func (q *Queue) Pop() *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	it := heap.Pop(&q.items).(*item)
	if q.items.Len() > 0 {
		// Leave the signal armed while work remains.
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return it.task
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Ready returns the wake channel. A receive means at least one task was
// pending recently; consumers should Pop and re-check.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
