// Package queue provides the priority queues used during graph traversal.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     uint64  // Node is the id of the item.
	Distance float32 // Distance is the priority of the item in the queue.
	Index    int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
//
// With Order=false the queue is a min-heap on distance (closest on top),
// with Order=true a max-heap (furthest on top).
type PriorityQueue struct {
	Order bool
	Items []*PriorityQueueItem
}

// NewMin creates a min-heap with capacity for n items.
func NewMin(n int) *PriorityQueue {
	return &PriorityQueue{Items: make([]*PriorityQueueItem, 0, n)}
}

// NewMax creates a max-heap with capacity for n items.
func NewMax(n int) *PriorityQueue {
	return &PriorityQueue{Order: true, Items: make([]*PriorityQueueItem, 0, n)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if !pq.Order {
		return pq.Items[i].Distance < pq.Items[j].Distance
	}
	return pq.Items[i].Distance > pq.Items[j].Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() *PriorityQueueItem {
	return pq.Items[0]
}

// PushItem pushes an item maintaining heap order.
func (pq *PriorityQueue) PushItem(node uint64, distance float32) {
	heap.Push(pq, &PriorityQueueItem{Node: node, Distance: distance})
}

// PopItem pops the top item maintaining heap order.
func (pq *PriorityQueue) PopItem() (*PriorityQueueItem, bool) {
	if pq.Len() == 0 {
		return nil, false
	}
	item, _ := heap.Pop(pq).(*PriorityQueueItem)
	return item, true
}

// Reset empties the queue while keeping the allocated backing slice.
func (pq *PriorityQueue) Reset() {
	for i := range pq.Items {
		pq.Items[i] = nil
	}
	pq.Items = pq.Items[:0]
}
