package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vsinha/mes/pkg/domain/entities"
)

// BOMValidator provides validation for BOM structure integrity
type BOMValidator struct{}

// NewBOMValidator creates a new BOM validator
func NewBOMValidator() *BOMValidator {
	return &BOMValidator{}
}

// ValidationResult contains the results of BOM validation
type ValidationResult struct {
	HasCycles      bool
	CyclePaths     [][]entities.ProductID
	DuplicateLinks []entities.BillOfMaterialLink
	Errors         []string
}

// Err returns the first cycle as a *entities.CycleError, or nil
func (r *ValidationResult) Err() error {
	if len(r.CyclePaths) == 0 {
		return nil
	}
	return &entities.CycleError{Path: r.CyclePaths[0]}
}

// ValidateBOM checks a set of links for cycles and overlapping duplicates.
// A cycle only counts when its links are all effective at a common instant.
func (v *BOMValidator) ValidateBOM(links []*entities.BillOfMaterialLink) *ValidationResult {
	result := &ValidationResult{
		CyclePaths:     make([][]entities.ProductID, 0),
		DuplicateLinks: make([]entities.BillOfMaterialLink, 0),
		Errors:         make([]string, 0),
	}

	seenCycles := make(map[string]bool)
	for _, instant := range v.breakpoints(links) {
		adjacencyMap := v.buildAdjacencyMap(links, instant)
		for _, cycle := range v.detectCycles(adjacencyMap) {
			key := cycleKey(cycle)
			if seenCycles[key] {
				continue
			}
			seenCycles[key] = true
			result.CyclePaths = append(result.CyclePaths, cycle)
		}
	}
	result.HasCycles = len(result.CyclePaths) > 0

	result.DuplicateLinks = v.detectDuplicateLinks(links)

	for _, cycle := range result.CyclePaths {
		result.Errors = append(result.Errors, (&entities.CycleError{Path: cycle}).Error())
	}
	if len(result.DuplicateLinks) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("found %d overlapping duplicate BOM links", len(result.DuplicateLinks)))
	}

	return result
}

// breakpoints returns the distinct EffectiveFrom instants. Effective windows are
// intervals, so a set of pairwise overlapping links is jointly effective at the
// latest of their start dates.
func (v *BOMValidator) breakpoints(links []*entities.BillOfMaterialLink) []time.Time {
	seen := make(map[int64]bool)
	instants := make([]time.Time, 0)
	for _, link := range links {
		key := link.EffectiveFrom.UnixNano()
		if !seen[key] {
			seen[key] = true
			instants = append(instants, link.EffectiveFrom)
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	return instants
}

// buildAdjacencyMap creates a map of parent -> children for links effective at asOf
func (v *BOMValidator) buildAdjacencyMap(links []*entities.BillOfMaterialLink, asOf time.Time) map[entities.ProductID][]entities.ProductID {
	adjacencyMap := make(map[entities.ProductID][]entities.ProductID)

	for _, link := range links {
		if !link.EffectiveAt(asOf) {
			continue
		}
		children := adjacencyMap[link.ParentProductID]

		found := false
		for _, child := range children {
			if child == link.ChildProductID {
				found = true
				break
			}
		}
		if !found {
			adjacencyMap[link.ParentProductID] = append(children, link.ChildProductID)
		}
	}

	return adjacencyMap
}

// detectCycles uses DFS to find cycles in the BOM structure
func (v *BOMValidator) detectCycles(adjacencyMap map[entities.ProductID][]entities.ProductID) [][]entities.ProductID {
	visited := make(map[entities.ProductID]bool)
	recursionStack := make(map[entities.ProductID]bool)
	cycles := make([][]entities.ProductID, 0)

	parents := make([]entities.ProductID, 0, len(adjacencyMap))
	for parent := range adjacencyMap {
		parents = append(parents, parent)
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })

	for _, parent := range parents {
		if !visited[parent] {
			v.dfsDetectCycle(parent, adjacencyMap, visited, recursionStack, nil, &cycles)
		}
	}

	return cycles
}

// dfsDetectCycle performs depth-first search to detect cycles
func (v *BOMValidator) dfsDetectCycle(
	current entities.ProductID,
	adjacencyMap map[entities.ProductID][]entities.ProductID,
	visited map[entities.ProductID]bool,
	recursionStack map[entities.ProductID]bool,
	path []entities.ProductID,
	cycles *[][]entities.ProductID,
) {
	visited[current] = true
	recursionStack[current] = true
	path = append(path, current)

	for _, child := range adjacencyMap[current] {
		if !visited[child] {
			v.dfsDetectCycle(child, adjacencyMap, visited, recursionStack, path, cycles)
			continue
		}
		if !recursionStack[child] {
			continue
		}
		for i, product := range path {
			if product == child {
				cycle := make([]entities.ProductID, 0, len(path)-i+1)
				cycle = append(cycle, path[i:]...)
				cycle = append(cycle, child) // close the cycle
				*cycles = append(*cycles, cycle)
				break
			}
		}
	}

	recursionStack[current] = false
}

// detectDuplicateLinks finds links sharing parent and child whose windows overlap
func (v *BOMValidator) detectDuplicateLinks(links []*entities.BillOfMaterialLink) []entities.BillOfMaterialLink {
	byPair := make(map[string][]*entities.BillOfMaterialLink)
	duplicates := make([]entities.BillOfMaterialLink, 0)

	for _, link := range links {
		key := fmt.Sprintf("%s|%s", link.ParentProductID, link.ChildProductID)
		for _, existing := range byPair[key] {
			if existing.Overlaps(*link) {
				duplicates = append(duplicates, *link)
				break
			}
		}
		byPair[key] = append(byPair[key], link)
	}

	return duplicates
}

// cycleKey normalizes a closed cycle so rotations of the same loop compare equal
func cycleKey(cycle []entities.ProductID) string {
	loop := cycle[:len(cycle)-1]
	if len(loop) == 0 {
		return ""
	}
	start := 0
	for i, p := range loop {
		if p < loop[start] {
			start = i
		}
	}
	parts := make([]string, 0, len(loop))
	for i := range loop {
		parts = append(parts, string(loop[(start+i)%len(loop)]))
	}
	return strings.Join(parts, ">")
}
