package engine

import (
	"context"
	"sort"

	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

// ChainCount is the size of one relationship chain of a node.
type ChainCount struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Count     int    `json:"count"`
}

// NodeReport summarizes a node for inspection. Property values are rendered
// as text.
type NodeReport struct {
	ID         storage.NodeID    `json:"id"`
	Properties map[string]string `json:"properties"`
	Chains     []ChainCount      `json:"chains"`
	Total      int               `json:"total"`
}

// Inspect reads a node and counts its relationships per type and direction
// in a read-only transaction.
func (e *Engine) Inspect(ctx context.Context, id storage.NodeID) (*NodeReport, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Close(ctx)

	node, err := tx.GetNode(id)
	if err != nil {
		return nil, err
	}
	report := &NodeReport{ID: id, Properties: make(map[string]string, len(node.Properties))}
	for key, v := range node.Properties {
		report.Properties[key] = v.String()
	}

	names, err := tx.RelationshipTypes(id)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		for _, dir := range []storage.Direction{storage.Outgoing, storage.Incoming} {
			n, err := tx.CountRelationships(id, dir, name)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				report.Chains = append(report.Chains, ChainCount{Type: name, Direction: dir.String(), Count: n})
			}
		}
	}
	sort.SliceStable(report.Chains, func(i, j int) bool {
		return report.Chains[i].Type < report.Chains[j].Type
	})

	report.Total, err = tx.CountRelationships(id, storage.Both)
	if err != nil {
		return nil, err
	}
	return report, nil
}
