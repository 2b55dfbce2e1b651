package plantree

import (
	"sort"

	"github.com/Seasonsling/clarion/internal/models"
)

// Layers groups every task id into dependency layers: layer 0 holds tasks
// with no (resolvable) dependencies, each later layer depends only on
// earlier ones. Dangling dependency ids are ignored; tasks caught in a
// dependency cycle are grouped into one final layer. Views render the
// dependency graph from these layers without touching the tree.
func Layers(proj *models.Project) [][]string {
	ids := make(map[string]bool)
	deps := make(map[string][]string)
	var order []string
	for node := range Walk(proj) {
		ids[node.Task.ID] = true
		order = append(order, node.Task.ID)
	}
	for node := range Walk(proj) {
		for _, d := range node.Task.Dependencies {
			if ids[d] {
				deps[node.Task.ID] = append(deps[node.Task.ID], d)
			}
		}
	}

	placed := make(map[string]bool)
	var layers [][]string
	remaining := len(order)
	for remaining > 0 {
		var layer []string
		for _, id := range order {
			if placed[id] {
				continue
			}
			ready := true
			for _, d := range deps[id] {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// Cycle: everything left goes into one final layer.
			for _, id := range order {
				if !placed[id] {
					layer = append(layer, id)
				}
			}
			sort.Strings(layer)
			layers = append(layers, layer)
			break
		}
		for _, id := range layer {
			placed[id] = true
		}
		remaining -= len(layer)
		layers = append(layers, layer)
	}
	return layers
}

// Blocked returns the ids of incomplete tasks that have at least one
// resolvable, incomplete dependency.
func Blocked(proj *models.Project) []string {
	done := make(map[string]bool)
	for node := range Walk(proj) {
		done[node.Task.ID] = node.Task.Completed
	}
	var blocked []string
	for node := range Walk(proj) {
		if node.Task.Completed {
			continue
		}
		for _, d := range node.Task.Dependencies {
			if v, ok := done[d]; ok && !v {
				blocked = append(blocked, node.Task.ID)
				break
			}
		}
	}
	return blocked
}
