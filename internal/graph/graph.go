// Package graph holds the in-memory graph walks used for cycle checks and
// tree materialization. Callers load one project's edges and pass them in.
package graph

import (
	"sort"

	"tasktree/internal/domain"
)

// Reachable reports whether to can be reached from from by following adj.
// The walk is breadth-first and iterative, so deep chains cannot exhaust
// the stack.
func Reachable(adj map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ParentAdjacency turns child -> parent links into an adjacency map.
func ParentAdjacency(links map[string]string) map[string][]string {
	adj := make(map[string][]string, len(links))
	for child, parent := range links {
		if parent != "" {
			adj[child] = []string{parent}
		}
	}
	return adj
}

// Descendants returns every task below root, parents before their children.
func Descendants(links map[string]string, root string) []string {
	children := childIndex(links)
	var out []string
	queue := []string{root}
	seen := map[string]bool{root: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

func childIndex(links map[string]string) map[string][]string {
	children := map[string][]string{}
	for child, parent := range links {
		if parent != "" {
			children[parent] = append(children[parent], child)
		}
	}
	for _, c := range children {
		sort.Strings(c)
	}
	return children
}

// BuildTree nests tasks under their parents. Tasks are expected in group
// order; children keep the order they appear in. rootID selects one
// subtree; an empty rootID returns every root. Tasks whose parent is not in
// the input are treated as roots.
func BuildTree(tasks []domain.Task, rootID string) []*domain.TreeNode {
	nodes := make(map[string]*domain.TreeNode, len(tasks))
	for _, t := range tasks {
		nodes[t.ID] = &domain.TreeNode{Task: t, Children: []*domain.TreeNode{}}
	}
	var roots []*domain.TreeNode
	for _, t := range tasks {
		n := nodes[t.ID]
		if t.ParentTaskID != nil {
			if p, ok := nodes[*t.ParentTaskID]; ok {
				p.Children = append(p.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	// iterative pass keeps each sibling list in position order
	stack := append([]*domain.TreeNode(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sortNodes(n.Children)
		stack = append(stack, n.Children...)
	}
	if rootID == "" {
		if roots == nil {
			return []*domain.TreeNode{}
		}
		return roots
	}
	if n, ok := nodes[rootID]; ok {
		return []*domain.TreeNode{n}
	}
	return []*domain.TreeNode{}
}

func sortNodes(ns []*domain.TreeNode) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i].Task, ns[j].Task
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}
