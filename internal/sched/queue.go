package sched

// TaskQueue binds one scheduling strategy to its metadata type, giving the
// scheduler a stable queue surface that does not depend on the policy in
// effect.
type TaskQueue[M any, S SchedulingStrategy[M]] struct {
	strategy S
}

// NewTaskQueue wraps the given strategy instance.
func NewTaskQueue[M any, S SchedulingStrategy[M]](strategy S) *TaskQueue[M, S] {
	return &TaskQueue[M, S]{strategy: strategy}
}

// QueueTask admits a task for scheduling.
func (q *TaskQueue[M, S]) QueueTask(metadata M) {
	q.strategy.InsertTask(metadata)
}

// NextTask returns the next task the policy wants to run, or false if the
// queue is empty.
func (q *TaskQueue[M, S]) NextTask() (TaskID, bool) {
	return q.strategy.NextTask()
}

// RemoveTask withdraws a task from scheduling.
func (q *TaskQueue[M, S]) RemoveTask(id TaskID) {
	q.strategy.RemoveTask(id)
}

// Len returns the number of queued tasks.
func (q *TaskQueue[M, S]) Len() int {
	return q.strategy.Size()
}
