// Package assets is the synchronization and resolution engine: it decides
// fetch-or-serve-from-cache for a character's asset set, reconstructs the
// ship/container containment hierarchy, and resolves raw location ids into
// named places with a security band.
package assets

import (
	"sort"

	"github.com/alexjbarnes/hangar-sync/internal/models"
)

// BuildHierarchy reconstructs containment for one character's asset set.
// A row whose LocationID equals another row's ItemID is nested under that
// row; everything else stands at its raw location. The result maps raw
// location id to the root nodes there, children sorted by item id.
//
// Pure function over one set; no I/O. A row can never be its own parent:
// a self-referencing LocationID is treated as standalone. Rows trapped in
// a containment cycle (corrupt upstream data) are also flattened to
// standalone rather than dropped.
func BuildHierarchy(rows []models.Asset) map[int64][]models.AssetNode {
	byItem := make(map[int64]models.Asset, len(rows))
	for _, row := range rows {
		byItem[row.ItemID] = row
	}

	children := make(map[int64][]models.Asset)

	var roots []models.Asset

	for _, row := range rows {
		parent, contained := byItem[row.LocationID]
		if contained && parent.ItemID != row.ItemID {
			children[parent.ItemID] = append(children[parent.ItemID], row)
			continue
		}

		roots = append(roots, row)
	}

	visited := make(map[int64]bool, len(rows))
	grouped := make(map[int64][]models.AssetNode)

	sortAssets(roots)

	for _, root := range roots {
		node := buildNode(root, children, visited)
		grouped[root.LocationID] = append(grouped[root.LocationID], node)
	}

	// Cycle members were classified as contained but are reachable from no
	// root. Surface them as standalone so nothing silently disappears.
	var orphans []models.Asset

	for _, row := range rows {
		if !visited[row.ItemID] {
			orphans = append(orphans, row)
		}
	}

	sortAssets(orphans)

	for _, row := range orphans {
		if visited[row.ItemID] {
			continue // nested under an earlier orphan
		}

		node := buildNode(row, children, visited)
		grouped[row.LocationID] = append(grouped[row.LocationID], node)
	}

	return grouped
}

func buildNode(row models.Asset, children map[int64][]models.Asset, visited map[int64]bool) models.AssetNode {
	visited[row.ItemID] = true

	node := models.AssetNode{Asset: row}

	kids := children[row.ItemID]
	sortAssets(kids)

	for _, kid := range kids {
		if visited[kid.ItemID] {
			continue
		}

		node.Children = append(node.Children, buildNode(kid, children, visited))
	}

	return node
}

func sortAssets(rows []models.Asset) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ItemID < rows[j].ItemID
	})
}
