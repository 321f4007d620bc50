package sim

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
)

// EffectiveCellSize is the road length in meters one vehicle occupies in a
// standing queue. It derives storage capacities that were left at zero.
const EffectiveCellSize = 7.5

// Link is the static description of one directed road segment.
type Link struct {
	ID   string
	From string // upstream node
	To   string // downstream node

	Length    float64 // meters
	FreeSpeed float64 // meters per second
	Lanes     int     // defaults to 1

	// FlowCapacity is the maximum outflow in vehicles per second.
	FlowCapacity float64
	// StorageCapacity is the maximum number of vehicles on the link.
	// Zero derives it from Length, Lanes and EffectiveCellSize.
	StorageCapacity int
}

// FreeFlowTime is the minimum time a vehicle spends on the link.
func (l Link) FreeFlowTime() float64 {
	return l.Length / l.FreeSpeed
}

// Headway is the minimum time between two departures from the link.
func (l Link) Headway() float64 {
	return 1 / l.FlowCapacity
}

// Network is a validated, read-only road network. Besides the links it keeps
// a turn graph: a directed graph over links with an edge a->b whenever b
// starts at the node where a ends.
type Network struct {
	links []Link
	index map[string]int
	turns *simple.DirectedGraph
}

// NewNetwork validates links and builds the turn graph. Storage capacities
// left at zero are derived. Any invalid attribute yields a ConfigurationError.
func NewNetwork(links []Link) (*Network, error) {
	n := &Network{
		links: make([]Link, 0, len(links)),
		index: make(map[string]int, len(links)),
		turns: simple.NewDirectedGraph(),
	}
	for _, l := range links {
		entity := fmt.Sprintf("link %q", l.ID)
		if l.ID == "" {
			return nil, configErrorf("link", "empty id")
		}
		if _, dup := n.index[l.ID]; dup {
			return nil, configErrorf(entity, "duplicate id")
		}
		if l.From == "" || l.To == "" {
			return nil, configErrorf(entity, "missing from/to node")
		}
		if !(l.Length > 0) || math.IsInf(l.Length, 0) {
			return nil, configErrorf(entity, "length must be positive and finite, got %v", l.Length)
		}
		if !(l.FreeSpeed > 0) || math.IsInf(l.FreeSpeed, 0) {
			return nil, configErrorf(entity, "free speed must be positive and finite, got %v", l.FreeSpeed)
		}
		if !(l.FlowCapacity > 0) || math.IsInf(l.FlowCapacity, 0) {
			return nil, configErrorf(entity, "flow capacity must be positive and finite, got %v", l.FlowCapacity)
		}
		if l.Lanes == 0 {
			l.Lanes = 1
		}
		if l.Lanes < 0 {
			return nil, configErrorf(entity, "lanes must be positive, got %d", l.Lanes)
		}
		if l.StorageCapacity == 0 {
			l.StorageCapacity = max(1, int(math.Floor(l.Length*float64(l.Lanes)/EffectiveCellSize)))
		}
		if l.StorageCapacity < 1 {
			return nil, configErrorf(entity, "storage capacity must be at least 1, got %d", l.StorageCapacity)
		}
		n.index[l.ID] = len(n.links)
		n.links = append(n.links, l)
		n.turns.AddNode(simple.Node(int64(len(n.links) - 1)))
	}

	byFrom := make(map[string][]int)
	for i, l := range n.links {
		byFrom[l.From] = append(byFrom[l.From], i)
	}
	for i, l := range n.links {
		for _, j := range byFrom[l.To] {
			if i == j {
				// a loop link following itself; gonum simple graphs reject self edges
				continue
			}
			n.turns.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(int64(j))})
		}
	}
	return n, nil
}

// Link returns the link with the given id.
func (n *Network) Link(id string) (Link, bool) {
	i, ok := n.index[id]
	if !ok {
		return Link{}, false
	}
	return n.links[i], true
}

// Links returns all links in input order.
func (n *Network) Links() []Link {
	out := make([]Link, len(n.links))
	copy(out, n.links)
	return out
}

// Len returns the number of links.
func (n *Network) Len() int { return len(n.links) }

// Connected reports whether a vehicle can turn from link a into link b.
func (n *Network) Connected(a, b string) bool {
	i, ok := n.index[a]
	if !ok {
		return false
	}
	j, ok := n.index[b]
	if !ok {
		return false
	}
	return n.turns.HasEdgeFromTo(int64(i), int64(j))
}

// Downstream lists the links reachable by one turn from link id, sorted.
func (n *Network) Downstream(id string) []string {
	i, ok := n.index[id]
	if !ok {
		return nil
	}
	var out []string
	it := n.turns.From(int64(i))
	for it.Next() {
		out = append(out, n.links[it.Node().ID()].ID)
	}
	sort.Strings(out)
	return out
}
