// Package spf computes, for a single area, the shortest-path tree over
// the Router-LSA/Network-LSA graph (RFC 2328 section 16.1) using
// Dijkstra's algorithm. It reads an area's link-state database and
// produces the per-destination cost and next hop that internal/rt turns
// into routing table items.
package spf

import (
	"container/heap"
	"net"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/lsdb"
)

// A NodeKind distinguishes the three vertex types RFC 2328's graph has.
type NodeKind int

const (
	RouterNode NodeKind = iota
	NetworkNode
	StubNode
)

// A NodeKey identifies one vertex in the SPF graph: a router by its
// router ID, a transit network by its designated router's IP address, or
// a stub network by its prefix and mask.
type NodeKey struct {
	Kind NodeKind
	ID   ospf.ID // router ID, or a network's address (DR IP or stub prefix)
	Mask ospf.ID // significant only for StubNode
}

// A Vertex is one settled node in the shortest-path tree: its cost from
// the root and the next hop(s) a packet destined there should take.
type Vertex struct {
	Key            NodeKey
	Cost           uint32
	NextHops       []net.IP // empty means "directly attached, no next hop needed"
	TransitCapable bool     // only meaningful for NetworkNode: its V bit was set
}

// A Tree is the result of one SPF run: every vertex reachable from the
// root, keyed by NodeKey.
type Tree struct {
	Root           ospf.ID
	Vertices       map[NodeKey]*Vertex
	TransitCapable bool // true if any settled network had its V bit set
}

// edge is one directed link discovered while building the graph.
type edge struct {
	to       NodeKey
	cost     uint32
	linkData ospf.ID // for a Network->Router edge, the router's advertised link data
}

type graph map[NodeKey][]edge

// linkCost looks up, in body (a Router-LSA body) for the link matching
// linkID, the metric the router advertises for that link, used to confirm
// bidirectional connectivity (RFC 2328 section 16.1 step 2's requirement
// that both directions be checked).
func linkCost(body *ospf.RouterLSABody, linkID ospf.ID) (uint16, bool) {
	for _, l := range body.Links {
		if l.ID == linkID {
			return l.Metric, true
		}
	}
	return 0, false
}

// build constructs the directed graph from every Router-LSA and
// Network-LSA in area, recording edges in both directions so Dijkstra can
// confirm bidirectional reachability before crediting a non-stub edge, as
// RFC 2328 section 16.1 step 2 requires.
func build(lsas []ospf.LSA) (graph, map[ospf.ID]*ospf.RouterLSABody, map[ospf.ID]*ospf.NetworkLSABody, map[ospf.ID]ospf.ID) {
	routers := make(map[ospf.ID]*ospf.RouterLSABody)
	networks := make(map[ospf.ID]*ospf.NetworkLSABody)
	networkDR := make(map[ospf.ID]ospf.ID)

	for _, l := range lsas {
		switch b := l.Body.(type) {
		case *ospf.RouterLSABody:
			routers[l.Header.AdvertisingRouter] = b
		case *ospf.NetworkLSABody:
			networks[l.Header.LinkStateID] = b
			// The Network-LSA's advertising router is always the network's
			// DR (RFC 2328 section 12.4.2); its own Router-LSA is where the
			// V bit this network's transit capability depends on lives.
			networkDR[l.Header.LinkStateID] = l.Header.AdvertisingRouter
		}
	}

	g := make(graph)
	for routerID, rb := range routers {
		self := NodeKey{Kind: RouterNode, ID: routerID}
		for _, link := range rb.Links {
			switch link.Type {
			case ospf.LinkPointToPoint, ospf.LinkVirtual:
				// link.ID names the neighbor's router ID; confirm the
				// neighbor advertises a matching link back.
				peer, ok := routers[link.ID]
				if !ok {
					continue
				}
				if _, back := linkCost(peer, routerID); !back {
					continue
				}
				g[self] = append(g[self], edge{to: NodeKey{Kind: RouterNode, ID: link.ID}, cost: uint32(link.Metric)})

			case ospf.LinkTransit:
				// link.ID names the transit network's designated router
				// (its Network-LSA's link state ID). The reverse edge is
				// confirmed by the network listing this router among its
				// attached routers.
				net, ok := networks[link.ID]
				if !ok {
					continue
				}
				attached := false
				for _, r := range net.AttachedRouters {
					if r == routerID {
						attached = true
						break
					}
				}
				if !attached {
					continue
				}
				g[self] = append(g[self], edge{to: NodeKey{Kind: NetworkNode, ID: link.ID}, cost: uint32(link.Metric), linkData: link.Data})

			case ospf.LinkStub:
				// Stub links are unidirectional; no reverse check.
				stub := NodeKey{Kind: StubNode, ID: link.ID, Mask: link.Data}
				g[self] = append(g[self], edge{to: stub, cost: uint32(link.Metric)})
			}
		}
	}

	for netID, nb := range networks {
		self := NodeKey{Kind: NetworkNode, ID: netID}
		for _, r := range nb.AttachedRouters {
			rb, ok := routers[r]
			if !ok {
				continue
			}
			// The next hop to reach r via this network is r's own
			// interface address on it, found on r's matching transit
			// link back to this network.
			var linkData ospf.ID
			for _, l := range rb.Links {
				if l.Type == ospf.LinkTransit && l.ID == netID {
					linkData = l.Data
					break
				}
			}
			g[self] = append(g[self], edge{to: NodeKey{Kind: RouterNode, ID: r}, cost: 0, linkData: linkData})
		}
	}

	return g, routers, networks, networkDR
}

// item is one entry in the Dijkstra priority queue.
type item struct {
	key            NodeKey
	cost           uint32
	viaNetworkParent bool
	index          int
}

type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	// Tie-break preferring a path whose parent is a transit network, per
	// spec section 4.7 step 3.
	if pq[i].viaNetworkParent != pq[j].viaNetworkParent {
		return pq[i].viaNetworkParent
	}
	return false
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	it := x.(*item)
	it.index = n
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// Run computes the shortest-path tree rooted at root (this router's own
// ID) over the Router-LSA/Network-LSA graph built from lsas, which must
// be every type-1/2 LSA currently stored for one area.
func Run(root ospf.ID, lsas []ospf.LSA) *Tree {
	g, routers, _, networkDR := build(lsas)

	tree := &Tree{Root: root, Vertices: make(map[NodeKey]*Vertex)}
	rootKey := NodeKey{Kind: RouterNode, ID: root}

	settled := make(map[NodeKey]bool)
	dist := map[NodeKey]uint32{rootKey: 0}

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &item{key: rootKey, cost: 0})

	tree.Vertices[rootKey] = &Vertex{Key: rootKey, Cost: 0}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*item)
		if settled[cur.key] {
			continue
		}
		settled[cur.key] = true

		curVertex := tree.Vertices[cur.key]

		if cur.key.Kind == NetworkNode {
			// Spec section 4.7 step 5: transit capability is set from the
			// V bit of the Router-LSA that originated this network's
			// Network-LSA (its DR), not from anything on the Network-LSA
			// itself.
			if dr, ok := networkDR[cur.key.ID]; ok {
				if rb, ok := routers[dr]; ok && rb.VBit {
					curVertex.TransitCapable = true
					tree.TransitCapable = true
				}
			}
		}

		for _, e := range g[cur.key] {
			if settled[e.to] {
				continue
			}
			newCost := curVertex.Cost + e.cost
			existing, has := dist[e.to]
			if has && newCost > existing {
				continue
			}

			nextHops := nextHopsFor(cur.key, curVertex, e, routers, rootKey)

			if !has || newCost < existing {
				dist[e.to] = newCost
				tree.Vertices[e.to] = &Vertex{Key: e.to, Cost: newCost, NextHops: nextHops}
			} else {
				// Equal cost: record an additional next hop (ECMP is
				// recorded, per spec section 1's scope, even though only
				// one is installed to the FIB).
				v := tree.Vertices[e.to]
				v.NextHops = mergeNextHops(v.NextHops, nextHops)
			}

			heap.Push(pq, &item{key: e.to, cost: newCost, viaNetworkParent: cur.key.Kind == NetworkNode})
		}
	}

	return tree
}

// nextHopsFor implements spec section 4.7 step 6: next hops are
// inherited from the parent unless the parent is the root (in which case
// a directly attached network gets no next hop, which the routing table
// layer represents as 0.0.0.0) or the parent is a network with no next
// hop yet (in which case the child router's link data on that network is
// the next hop).
func nextHopsFor(parentKey NodeKey, parent *Vertex, e edge, routers map[ospf.ID]*ospf.RouterLSABody, rootKey NodeKey) []net.IP {
	if len(parent.NextHops) > 0 {
		return parent.NextHops
	}

	if parentKey == rootKey && e.to.Kind == NetworkNode {
		// Directly attached network: no next hop needed, the routing
		// table layer represents this as 0.0.0.0.
		return nil
	}

	if parentKey.Kind == NetworkNode && e.to.Kind == RouterNode {
		if e.linkData != (ospf.ID{}) {
			return []net.IP{net.IP(e.linkData[:])}
		}
	}

	return nil
}

func mergeNextHops(existing, add []net.IP) []net.IP {
	for _, a := range add {
		dup := false
		for _, e := range existing {
			if e.Equal(a) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, a)
		}
	}
	return existing
}
