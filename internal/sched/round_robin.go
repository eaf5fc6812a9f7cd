package sched

import "github.com/emirpasic/gods/lists/doublylinkedlist"

// SchedulingStrategy decides which queued task runs next. Implementations
// annotate queued tasks with their own metadata type M; the scheduler never
// inspects it.
type SchedulingStrategy[M any] interface {
	// InsertTask admits a task for scheduling.
	InsertTask(metadata M)

	// NextTask removes and returns the next task to run, or false if no
	// task is queued.
	NextTask() (TaskID, bool)

	// RemoveTask withdraws a task from consideration.
	RemoveTask(id TaskID)

	// Size returns the number of queued tasks.
	Size() int
}

// RoundRobinMetadata annotates a task queued under round-robin scheduling.
// The policy needs nothing beyond the task's identity.
type RoundRobinMetadata struct {
	taskID TaskID
}

// NewRoundRobinMetadata builds the queue annotation for the given task.
func NewRoundRobinMetadata(id TaskID) RoundRobinMetadata {
	return RoundRobinMetadata{taskID: id}
}

// TaskID returns the annotated task's id.
func (m RoundRobinMetadata) TaskID() TaskID { return m.taskID }

// RoundRobinScheduling cycles through runnable tasks in strict insertion
// order, with no priority.
type RoundRobinScheduling struct {
	queue *doublylinkedlist.List
}

// NewRoundRobinScheduling returns an empty round-robin run queue.
func NewRoundRobinScheduling() *RoundRobinScheduling {
	return &RoundRobinScheduling{queue: doublylinkedlist.New()}
}

// NextTask pops the front of the queue and immediately requeues it at the
// back, so that N queued tasks each get exactly one turn per N calls.
func (s *RoundRobinScheduling) NextTask() (TaskID, bool) {
	front, ok := s.queue.Get(0)
	if !ok {
		return 0, false
	}
	s.queue.Remove(0)

	metadata := front.(RoundRobinMetadata)
	s.InsertTask(metadata)

	return metadata.taskID, true
}

// InsertTask appends the task to the back of the queue.
func (s *RoundRobinScheduling) InsertTask(metadata RoundRobinMetadata) {
	s.queue.Add(metadata)
}

// RemoveTask withdraws the task from the queue. The queue is in rotation
// order, not id order, so the lookup is a linear scan.
func (s *RoundRobinScheduling) RemoveTask(id TaskID) {
	if idx := s.queue.IndexOf(RoundRobinMetadata{taskID: id}); idx >= 0 {
		s.queue.Remove(idx)
	}
}

// Size returns the number of queued tasks.
func (s *RoundRobinScheduling) Size() int {
	return s.queue.Size()
}
