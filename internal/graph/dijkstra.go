package graph

import "container/heap"

type distItem struct {
	node NodeID
	dist int
}

// distHeap implements heap.Interface.
type distHeap []distItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)   { *h = append(*h, x.(distItem)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// AllDistances returns the shortest-path distance from src to every node
// reachable from it, src included at 0. Unreachable nodes are absent.
func (g *Graph) AllDistances(src NodeID) map[NodeID]int {
	g.mustHave(src)
	if w, ok := g.UniformWeight(); ok {
		return g.bfs(src, w)
	}
	dist := map[NodeID]int{src: 0}
	h := &distHeap{{node: src}}
	for h.Len() > 0 {
		cur := heap.Pop(h).(distItem)
		if cur.dist > dist[cur.node] {
			continue // stale entry
		}
		for _, nb := range g.adj[cur.node] {
			nd := cur.dist + nb.Weight
			if old, seen := dist[nb.Node]; !seen || nd < old {
				dist[nb.Node] = nd
				heap.Push(h, distItem{node: nb.Node, dist: nd})
			}
		}
	}
	return dist
}

func (g *Graph) bfs(src NodeID, w int) map[NodeID]int {
	dist := map[NodeID]int{src: 0}
	queue := []NodeID{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range g.adj[cur] {
			if _, seen := dist[nb.Node]; seen {
				continue
			}
			dist[nb.Node] = dist[cur] + w
			queue = append(queue, nb.Node)
		}
	}
	return dist
}
