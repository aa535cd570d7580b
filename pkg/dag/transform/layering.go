package transform

import "github.com/matzehuels/rezls/pkg/dag"

// AssignLayers assigns each package the length of the longest requirement
// chain leading to it from a root: roots are row 0 and every package sits
// below all packages requiring it.
//
// Existing row assignments in the DAG are overwritten. Nodes on a cycle
// never become ready and keep row 0; resolved graphs are acyclic.
//
// Time complexity is O(V + E).
func AssignLayers(g *dag.DAG) {
	nodes := g.Nodes()
	inDegree := make(map[string]int, len(nodes))
	rows := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))

	for _, n := range nodes {
		degree := g.InDegree(n.ID)
		inDegree[n.ID] = degree
		rows[n.ID] = 0
		if degree == 0 {
			queue = append(queue, n.ID)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, child := range g.Children(curr) {
			if row := rows[curr] + 1; row > rows[child] {
				rows[child] = row
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	g.SetRows(rows)
}

// Normalize applies [TransitiveReduction] then [AssignLayers] and returns g.
func Normalize(g *dag.DAG) *dag.DAG {
	TransitiveReduction(g)
	AssignLayers(g)
	return g
}
