package pipeline

import (
	"container/heap"
	"iter"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// cursor is the read position in one sorted run.
type cursor struct {
	run []*model.Event
	pos int
}

type runHeap []*cursor

func (h runHeap) Len() int           { return len(h) }
func (h runHeap) Less(i, j int) bool { return model.Less(h[i].run[h[i].pos], h[j].run[h[j].pos]) }
func (h runHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *runHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// merge yields the events of already sorted runs in global case order.
func merge(runs [][]*model.Event) iter.Seq[*model.Event] {
	return func(yield func(*model.Event) bool) {
		h := make(runHeap, 0, len(runs))
		for _, r := range runs {
			if len(r) > 0 {
				h = append(h, &cursor{run: r})
			}
		}
		heap.Init(&h)
		for h.Len() > 0 {
			c := h[0]
			if !yield(c.run[c.pos]) {
				return
			}
			c.pos++
			if c.pos == len(c.run) {
				heap.Pop(&h)
			} else {
				heap.Fix(&h, 0)
			}
		}
	}
}
