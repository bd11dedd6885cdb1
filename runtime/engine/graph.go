package engine

import (
	"context"
	"fmt"
	"sort"

	"goa.design/clue/log"

	"github.com/anyfn/anyfn/runtime/gen"
)

// BatchResult reports the outcome of GenerateAll per symbol. A symbol appears
// in exactly one of the two maps.
type BatchResult struct {
	// Artifacts holds the ready artifact for every symbol that generated.
	Artifacts map[string]*gen.Artifact
	// Failures holds the terminal error for every symbol that did not:
	// dependency cycles, failed dependencies, or its own generation failure.
	Failures map[string]error
}

// Failed reports whether any symbol in the batch failed.
func (r *BatchResult) Failed() bool { return len(r.Failures) > 0 }

// GenerateAll resolves a set of registered stubs in dependency order, so that
// each symbol's context snapshot includes its already generated dependencies.
// Dependency edges come from explicit DependsOn hints plus inference: a
// parameter whose type names another registered symbol depends on it.
//
// Cycles among declared dependencies fail every cycle member with a
// DependencyCycleError naming the members, without committing anything for
// them; symbols outside the cycle still complete. A failed symbol
// short-circuits its dependents with a FailedDependencyError, without
// attempting synthesis for them.
//
// GenerateAll returns an error only for an invalid batch (duplicate names,
// unknown dependency hints); per-symbol failures are reported in the result.
func (e *Engine) GenerateAll(ctx context.Context, reqs []gen.Request) (*BatchResult, error) {
	nodes, err := buildGraph(reqs)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{
		Artifacts: make(map[string]*gen.Artifact, len(nodes)),
		Failures:  make(map[string]error),
	}

	// Fail every member of every cycle up front; nothing is generated for
	// them.
	cycles := findCycles(nodes)
	for name, cerr := range cycles {
		res.Failures[name] = cerr
	}

	order := topoOrder(nodes, cycles)
	closures := make(map[string][]string, len(nodes))
	log.Debug(ctx, log.KV{K: "msg", V: "batch generation"},
		log.KV{K: "symbols", V: len(nodes)}, log.KV{K: "cycle_members", V: len(cycles)})

	for _, name := range order {
		node := nodes[name]
		if dep, derr := failedDependency(node, res.Failures); dep != "" {
			res.Failures[name] = &gen.FailedDependencyError{Name: name, Dependency: dep, Err: derr}
			continue
		}
		visible := closure(name, nodes, closures)
		art, rerr := e.resolveScoped(ctx, node.req, visible)
		if rerr != nil {
			res.Failures[name] = rerr
			continue
		}
		res.Artifacts[name] = art
	}
	return res, nil
}

type batchNode struct {
	req  gen.Request
	deps []string
}

// buildGraph validates the batch and derives each node's dependency set.
func buildGraph(reqs []gen.Request) (map[string]*batchNode, error) {
	nodes := make(map[string]*batchNode, len(reqs))
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		if _, dup := nodes[req.Name]; dup {
			return nil, fmt.Errorf("invalid batch: symbol %q registered more than once", req.Name)
		}
		nodes[req.Name] = &batchNode{req: req}
	}
	for name, node := range nodes {
		seen := make(map[string]bool)
		for _, dep := range node.req.DependsOn {
			if _, ok := nodes[dep]; !ok {
				return nil, fmt.Errorf("invalid batch: %q depends on unregistered symbol %q", name, dep)
			}
			if dep != name && !seen[dep] {
				seen[dep] = true
				node.deps = append(node.deps, dep)
			}
		}
		for _, p := range node.req.Params {
			if _, ok := nodes[p.Type]; ok && p.Type != name && !seen[p.Type] {
				seen[p.Type] = true
				node.deps = append(node.deps, p.Type)
			}
		}
		sort.Strings(node.deps)
	}
	return nodes, nil
}

// findCycles runs Tarjan's strongly connected components over the dependency
// graph and returns, for every symbol on a cycle, the shared error naming all
// members of its cycle.
func findCycles(nodes map[string]*batchNode) map[string]error {
	names := sortedNames(nodes)
	index := make(map[string]int, len(names))
	lowlink := make(map[string]int, len(names))
	onStack := make(map[string]bool, len(names))
	var stack []string
	next := 0
	out := make(map[string]error)

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range nodes[v].deps {
			if _, visited := index[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] != index[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || selfLoop(nodes[v]) {
			cerr := gen.NewDependencyCycleError(scc)
			for _, m := range scc {
				out[m] = cerr
			}
		}
	}

	for _, name := range names {
		if _, visited := index[name]; !visited {
			strongconnect(name)
		}
	}
	return out
}

func selfLoop(n *batchNode) bool {
	for _, d := range n.deps {
		if d == n.req.Name {
			return true
		}
	}
	return false
}

// topoOrder returns the non-cycle symbols in deterministic generation order:
// ascending dependency depth, then name. Cycle members are excluded; their
// dependents remain in the order and short-circuit at generation time.
func topoOrder(nodes map[string]*batchNode, cycles map[string]error) []string {
	depth := make(map[string]int, len(nodes))
	var depthOf func(name string, trail map[string]bool) int
	depthOf = func(name string, trail map[string]bool) int {
		if d, ok := depth[name]; ok {
			return d
		}
		if trail[name] {
			return 0 // cycle member, excluded from the order anyway
		}
		trail[name] = true
		d := 0
		for _, dep := range nodes[name].deps {
			if dd := depthOf(dep, trail) + 1; dd > d {
				d = dd
			}
		}
		delete(trail, name)
		depth[name] = d
		return d
	}

	var order []string
	for _, name := range sortedNames(nodes) {
		if _, inCycle := cycles[name]; inCycle {
			continue
		}
		depthOf(name, make(map[string]bool))
		order = append(order, name)
	}
	sort.Slice(order, func(i, j int) bool {
		if depth[order[i]] != depth[order[j]] {
			return depth[order[i]] < depth[order[j]]
		}
		return order[i] < order[j]
	})
	return order
}

// failedDependency returns the lexicographically smallest failed dependency
// of the node, if any, together with its error.
func failedDependency(node *batchNode, failures map[string]error) (string, error) {
	for _, dep := range node.deps {
		if err, failed := failures[dep]; failed {
			return dep, err
		}
	}
	return "", nil
}

// closure returns the transitive dependency closure of name, memoized and
// sorted. The closure scopes the symbol's context snapshot so its fingerprint
// depends only on its dependencies, never on unrelated batch members. A
// symbol with no dependencies gets an empty (non-nil) closure and therefore
// an empty snapshot.
func closure(name string, nodes map[string]*batchNode, memo map[string][]string) []string {
	if c, ok := memo[name]; ok {
		return c
	}
	memo[name] = []string{} // breaks dependency cycles during traversal
	set := make(map[string]bool)
	for _, dep := range nodes[name].deps {
		set[dep] = true
		for _, d := range closure(dep, nodes, memo) {
			set[d] = true
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	memo[name] = out
	return out
}

func sortedNames(nodes map[string]*batchNode) []string {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
