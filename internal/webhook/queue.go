package webhook

import (
	"container/heap"
	"time"
)

// job is a delivery waiting to be attempted.
type job struct {
	deliveryID string
	due        time.Time
}

// delayQueue is a min-heap of jobs ordered by due time.
type delayQueue []job

func (q delayQueue) Len() int           { return len(q) }
func (q delayQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }
func (q delayQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *delayQueue) Push(x any) { *q = append(*q, x.(job)) }

func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

func (q *delayQueue) push(j job) { heap.Push(q, j) }

// popDue removes the earliest job if it is due at now. Otherwise it reports how
// long until the earliest one is; -1 when empty.
func (q *delayQueue) popDue(now time.Time) (job, time.Duration, bool) {
	if q.Len() == 0 {
		return job{}, -1, false
	}
	if wait := (*q)[0].due.Sub(now); wait > 0 {
		return job{}, wait, false
	}
	return heap.Pop(q).(job), 0, true
}
