package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is closed")

type Task struct {
	ID        string
	URL       string
	Priority  int
	Retries   int
	CreatedAt time.Time
}

func NewTask(url string, priority int) *Task {
	return &Task{
		ID:        uuid.NewString(),
		URL:       url,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Retry returns a copy of t for another attempt, one priority step lower so
// fresh URLs go first.
func (t *Task) Retry() *Task {
	next := *t
	next.Retries++
	next.Priority--
	return &next
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Done(task *Task)
	Size() int
	Close() error
}

// InMemoryQueue orders tasks by descending priority, FIFO within a priority.
// It tracks tasks that were popped but not yet marked Done; once that count
// and the backlog both reach zero the queue closes itself, which lets
// consumers drain a batch that re-enqueues its own retries.
type InMemoryQueue struct {
	mu          sync.Mutex
	tasks       []*Task
	outstanding int
	closed      bool
	notify      chan struct{}
	done        chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:  make([]*Task, 0),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.outstanding++
	q.sortByPriority()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Pop blocks until a task is available, the queue closes or ctx ends.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			remaining := len(q.tasks)
			q.mu.Unlock()

			// Pass the wakeup on so other waiting consumers see the rest.
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Done marks a popped task finished. Push any retry before calling Done.
func (q *InMemoryQueue) Done(*Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding > 0 {
		q.outstanding--
	}
	if q.outstanding == 0 && len(q.tasks) == 0 {
		q.closeLocked()
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closeLocked()
	return nil
}

func (q *InMemoryQueue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *InMemoryQueue) sortByPriority() {
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
}
