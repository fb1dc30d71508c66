// Package order implements the per-MType reorder buffer: a wrap-aware
// min-heap that holds out-of-order arrivals until their in-order
// predecessor shows up, plus the UnreliableNewest variant that only keeps
// the latest-by-OrderNum payload.
package order

import (
	"container/heap"

	"github.com/ventosilenzioso/carrierpigeon/seqnum"
)

type item struct {
	orderNum uint16
	payload  []byte
}

type itemHeap []item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return seqnum.LessThan(h[i].orderNum, h[j].orderNum) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Buffer reorders arrivals for a single ReliableOrdered MType, tracking the
// next expected OrderNum and heaping anything that arrives ahead of it.
type Buffer struct {
	expected uint16
	heap     itemHeap
	ready    [][]byte
}

// NewBuffer returns a Buffer expecting OrderNum 0 first.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push admits a received payload at orderNum. A payload exactly at the
// expected OrderNum is emitted immediately (and drains any heaped
// successors that are now in order); a payload ahead of expected is
// heaped; a payload behind expected is a duplicate or stale arrival and is
// discarded.
func (b *Buffer) Push(orderNum uint16, payload []byte) {
	switch {
	case orderNum == b.expected:
		b.ready = append(b.ready, payload)
		b.expected++
		for len(b.heap) > 0 && b.heap[0].orderNum == b.expected {
			next := heap.Pop(&b.heap).(item)
			b.ready = append(b.ready, next.payload)
			b.expected++
		}
	case seqnum.GreaterThan(orderNum, b.expected):
		heap.Push(&b.heap, item{orderNum: orderNum, payload: payload})
	default:
		// before expected: already delivered or a duplicate.
	}
}

// DrainReady returns and clears every payload that has become
// deliverable since the last call, in OrderNum order.
func (b *Buffer) DrainReady() [][]byte {
	if len(b.ready) == 0 {
		return nil
	}
	out := b.ready
	b.ready = nil
	return out
}

// Pending reports how many messages are heaped waiting for a gap to fill,
// for metrics.
func (b *Buffer) Pending() int {
	return len(b.heap)
}

// Newest retains only the payload with the greatest OrderNum seen so far
// (wrap-aware), implementing the UnreliableNewest guarantee.
type Newest struct {
	hasValue  bool
	delivered bool
	orderNum  uint16
	payload   []byte
}

// NewNewest returns an empty Newest tracker.
func NewNewest() *Newest {
	return &Newest{}
}

// Push admits a received payload, keeping it only if it is newer
// (wrap-aware) than anything seen so far; stale arrivals are dropped.
func (n *Newest) Push(orderNum uint16, payload []byte) {
	if n.hasValue && !seqnum.GreaterThan(orderNum, n.orderNum) {
		return
	}
	n.hasValue = true
	n.delivered = false
	n.orderNum = orderNum
	n.payload = payload
}

// DrainReady returns the current payload if it hasn't been delivered yet.
func (n *Newest) DrainReady() [][]byte {
	if !n.hasValue || n.delivered {
		return nil
	}
	n.delivered = true
	return [][]byte{n.payload}
}
