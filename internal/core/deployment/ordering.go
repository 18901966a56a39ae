package deployment

import "fmt"

// =============================================================================
// Work Ordering Functions
// =============================================================================

// Batches groups work items into dependency levels using Kahn's algorithm.
// Every item in batch N depends only on items in batches before N, so the
// items of one batch can run concurrently. Within a batch, items keep their
// input order.
//
// The function implements a level-by-level BFS:
//  1. Build the in-degree of every item from its declared dependencies
//  2. The first batch is every item with in-degree 0
//  3. Completing a batch reduces the in-degree of its dependents
//  4. Items reaching in-degree 0 form the next batch
//
// Unlike a plain topological sort, a cycle or a dependency on a name that
// is not a work item is an error: the pipeline must not guess an order.
//
// Example:
//
//	// registry <- rootLog <- {A, B}
//	batches, _ := Batches(items)
//	// Result: [[registry], [rootLog], [A, B]]
func Batches(items []WorkItem) ([][]WorkItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(items))
	for i, item := range items {
		if _, dup := index[item.Name]; dup {
			return nil, NewPlanError(item.Name, "work item planned twice", ErrInvalidPolicy)
		}
		index[item.Name] = i
	}

	inDegree := make([]int, len(items))
	dependents := make([][]int, len(items))
	for i, item := range items {
		for _, dep := range item.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, NewPlanError(item.Name, fmt.Sprintf("depends on %q", dep), ErrUnknownDependency)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var current []int
	for i := range items {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}

	var batches [][]WorkItem
	placed := 0
	for len(current) > 0 {
		batch := make([]WorkItem, 0, len(current))
		ready := make([]bool, len(items))
		for _, i := range current {
			batch = append(batch, items[i])
			placed++
			for _, d := range dependents[i] {
				inDegree[d]--
				if inDegree[d] == 0 {
					ready[d] = true
				}
			}
		}
		batches = append(batches, batch)

		current = current[:0]
		for i := range items {
			if ready[i] {
				current = append(current, i)
			}
		}
	}

	if placed < len(items) {
		var stuck []string
		for i, item := range items {
			if inDegree[i] > 0 {
				stuck = append(stuck, item.Name)
			}
		}
		return nil, NewPlanError(fmt.Sprint(stuck), "items never become ready", ErrCircularDependency)
	}

	return batches, nil
}
