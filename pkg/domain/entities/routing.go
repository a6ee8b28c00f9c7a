package entities

import (
	"fmt"
	"sort"
)

// RoutingID identifies a routing template
type RoutingID string

// RoutingTask is a template step of a routing
type RoutingTask struct {
	SequenceNum               int
	Name                      string
	FixedAssetID              string
	PurposeTypeID             string
	EstimatedSetupMillis      int64
	EstimatedRunMillisPerUnit int64
}

// Routing is an ordered set of task templates applied to a production run
type Routing struct {
	ID    RoutingID
	Name  string
	Tasks []RoutingTask
}

// NewRouting creates a validated Routing with its tasks sorted by sequence number
func NewRouting(id RoutingID, name string, tasks []RoutingTask) (*Routing, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("routing id cannot be empty")
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("routing %s must have at least one task", id)
	}

	sorted := make([]RoutingTask, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SequenceNum < sorted[j].SequenceNum
	})

	for i, task := range sorted {
		if i > 0 && sorted[i-1].SequenceNum == task.SequenceNum {
			return nil, fmt.Errorf("routing %s has duplicate sequence number %d", id, task.SequenceNum)
		}
		if task.EstimatedSetupMillis < 0 || task.EstimatedRunMillisPerUnit < 0 {
			return nil, fmt.Errorf("routing %s task %d has negative estimates", id, task.SequenceNum)
		}
	}

	return &Routing{
		ID:    id,
		Name:  name,
		Tasks: sorted,
	}, nil
}
