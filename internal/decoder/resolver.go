package decoder

import (
	"context"
	"fmt"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// RelationStore is the slice of the storage layer the resolver needs.
type RelationStore interface {
	ListRelations(ctx context.Context, devAddr, gatewayID string) ([]*models.DeviceGatewayRelation, error)
	UpsertRelation(ctx context.Context, rel *models.DeviceGatewayRelation) error
}

// Resolver maps an ambiguous device address back to a registered device.
// Addresses are assigned at join time and get reused, so a (devAddr, gateway)
// pair can have several candidate relations; the resolver picks the one whose
// last recorded frame counter is closest to the frame being resolved.
type Resolver struct {
	store RelationStore
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store RelationStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the relation whose last-seen counter has the smallest
// absolute distance to fCnt, or nil when no relation is known for the
// address at this gateway.
func (r *Resolver) Resolve(ctx context.Context, devAddr, gatewayID string, fCnt int) (*models.DeviceGatewayRelation, error) {
	rels, err := r.store.ListRelations(ctx, devAddr, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	if len(rels) == 0 {
		return nil, nil
	}

	best := rels[0]
	bestDiff := counterDistance(best.LastFCnt, fCnt)
	for _, rel := range rels[1:] {
		if d := counterDistance(rel.LastFCnt, fCnt); d < bestDiff {
			best = rel
			bestDiff = d
		}
	}

	return best, nil
}

// RecordSighting refreshes the relation of an identified device at one
// gateway, creating it on first sight.
func (r *Resolver) RecordSighting(ctx context.Context, rel *models.DeviceGatewayRelation) error {
	if err := r.store.UpsertRelation(ctx, rel); err != nil {
		return fmt.Errorf("upsert relation: %w", err)
	}
	return nil
}

func counterDistance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
