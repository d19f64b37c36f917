package service

import (
	"container/list"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// recentTasks is a bounded, insertion-ordered index of task records.
// It is not safe for concurrent use; the tracker serializes access.
type recentTasks struct {
	items map[string]*list.Element
	order *list.List // oldest at front
	limit int
}

func newRecentTasks(limit int) *recentTasks {
	if limit < 1 {
		limit = 1
	}
	return &recentTasks{
		items: make(map[string]*list.Element),
		order: list.New(),
		limit: limit,
	}
}

// put records rec as the newest entry, evicting the oldest beyond the limit.
func (r *recentTasks) put(rec *domain.TaskRecord) {
	if el, ok := r.items[rec.TaskID]; ok {
		el.Value = rec
		r.order.MoveToBack(el)
		return
	}
	r.items[rec.TaskID] = r.order.PushBack(rec)
	for r.order.Len() > r.limit {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.items, oldest.Value.(*domain.TaskRecord).TaskID)
	}
}

func (r *recentTasks) get(taskID string) (*domain.TaskRecord, bool) {
	el, ok := r.items[taskID]
	if !ok {
		return nil, false
	}
	return el.Value.(*domain.TaskRecord), true
}

// newestFirst returns the records from newest to oldest.
func (r *recentTasks) newestFirst() []*domain.TaskRecord {
	out := make([]*domain.TaskRecord, 0, r.order.Len())
	for el := r.order.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(*domain.TaskRecord))
	}
	return out
}

func (r *recentTasks) len() int {
	return r.order.Len()
}
