package kernel

import (
	"cmp"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Analysis is the static view of a configuration: resource ceilings, which
// lower-priority tasks can block each task, which tasks are coupled through
// shared resources, and the order in which ceilings allow nested locking.
type Analysis struct {
	Resources []ResourceReport
	Tasks     []TaskReport
	// Groups lists tasks connected through shared resources, one group per
	// connected component with more than one task.
	Groups [][]string
	// LockOrder is a total order on resources by ceiling. Nested locks
	// taken in this order never raise the ceiling back down.
	LockOrder []string
}

type ResourceReport struct {
	Name      string
	Ceiling   Priority
	Accessors []string
}

type TaskReport struct {
	Name      string
	Priority  Priority
	Binding   string
	Resources []string
	// BlockedBy are lower-priority tasks that may hold a resource whose
	// ceiling is at least this task's priority.
	BlockedBy []string
}

func analyze(tasks []*task, resources []*resourceState) Analysis {
	n := len(tasks)
	g := simple.NewUndirectedGraph()
	for i := range tasks {
		g.AddNode(simple.Node(i))
	}
	for j := range resources {
		g.AddNode(simple.Node(n + j))
	}
	for i, t := range tasks {
		for j := range resources {
			if t.access&(1<<j) != 0 {
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(n+j)))
			}
		}
	}

	var an Analysis
	accessors := make([][]*task, len(resources))
	for j, st := range resources {
		var ceiling Priority
		it := g.From(int64(n + j))
		for it.Next() {
			t := tasks[it.Node().ID()]
			accessors[j] = append(accessors[j], t)
			if t.prio > ceiling {
				ceiling = t.prio
			}
		}
		slices.SortFunc(accessors[j], func(a, b *task) int { return cmp.Compare(a.id, b.id) })
		st.ceiling = ceiling
		an.Resources = append(an.Resources, ResourceReport{
			Name:      st.name,
			Ceiling:   ceiling,
			Accessors: taskNames(accessors[j]),
		})
	}

	for _, t := range tasks {
		rep := TaskReport{Name: t.name, Priority: t.prio, Binding: t.bind.String()}
		for j, st := range resources {
			if t.access&(1<<j) != 0 {
				rep.Resources = append(rep.Resources, st.name)
			}
			if st.ceiling < t.prio {
				continue
			}
			for _, u := range accessors[j] {
				if u.prio < t.prio && !slices.Contains(rep.BlockedBy, u.name) {
					rep.BlockedBy = append(rep.BlockedBy, u.name)
				}
			}
		}
		an.Tasks = append(an.Tasks, rep)
	}

	for _, comp := range topo.ConnectedComponents(g) {
		var names []string
		for _, node := range comp {
			if id := node.ID(); id < int64(n) {
				names = append(names, tasks[id].name)
			}
		}
		if len(names) > 1 {
			slices.Sort(names)
			an.Groups = append(an.Groups, names)
		}
	}
	slices.SortFunc(an.Groups, func(a, b []string) int { return strings.Compare(a[0], b[0]) })

	an.LockOrder = lockOrder(resources)
	return an
}

// lockOrder sorts resources topologically over "lower ceiling before
// higher ceiling" edges. Candidates at each step are taken by name so the
// result is deterministic.
func lockOrder(resources []*resourceState) []string {
	g := simple.NewDirectedGraph()
	for j := range resources {
		g.AddNode(simple.Node(j))
	}
	for a, ra := range resources {
		for b, rb := range resources {
			if ra.ceiling < rb.ceiling {
				g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
			}
		}
	}
	byName := func(nodes []graph.Node) {
		slices.SortFunc(nodes, func(a, b graph.Node) int {
			return strings.Compare(resources[a.ID()].name, resources[b.ID()].name)
		})
	}
	sorted, err := topo.SortStabilized(g, byName)
	if err != nil {
		// Ceiling edges only point upwards, so a cycle is impossible.
		panic(fmt.Sprintf("kernel: lock order: %v", err))
	}
	out := make([]string, len(sorted))
	for i, node := range sorted {
		out[i] = resources[node.ID()].name
	}
	return out
}

func taskNames(ts []*task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.name
	}
	return out
}
