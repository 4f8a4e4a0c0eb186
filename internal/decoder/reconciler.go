package decoder

import (
	"context"
	"fmt"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

// Reconciler maintains the replica counters of logical frames. Each
// reconciliation recounts every stored reception of the frame, so running it
// again after a redelivered message converges on the same numbers.
type Reconciler struct {
	store        storage.Store
	numTxReplica int
}

// NewReconciler creates a reconciler. numTxReplica is the number of times
// end devices transmit each logical frame.
func NewReconciler(store storage.Store, numTxReplica int) *Reconciler {
	return &Reconciler{store: store, numTxReplica: numTxReplica}
}

// Reconcile recomputes the counter row of one logical frame from the stored
// receptions. The counter row lock taken inside the transaction serializes
// concurrent reconciliations of the same (devAddr, fCnt) key.
func (r *Reconciler) Reconcile(ctx context.Context, devAddr string, fCnt int) error {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.AcquireReplicaCounter(ctx, devAddr, fCnt); err != nil {
		return fmt.Errorf("acquire replica counter: %w", err)
	}

	counts, err := tx.CountUplinkReplicas(ctx, devAddr, fCnt)
	if err != nil {
		return fmt.Errorf("count replicas: %w", err)
	}

	rc := computeCounter(devAddr, fCnt, counts, r.numTxReplica)
	if err := tx.UpdateReplicaCounter(ctx, rc); err != nil {
		return fmt.Errorf("update replica counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile tx: %w", err)
	}
	return nil
}

// computeCounter derives the counter fields from per-gateway reception
// counts. Loss is relative to the expected numTxReplica transmissions per
// gateway that saw the frame at all; it never goes negative when extra
// receptions appear.
func computeCounter(devAddr string, fCnt int, counts map[string]int, numTxReplica int) *models.ReplicaCounter {
	total := 0
	maxAtGateway := 0
	for _, n := range counts {
		total += n
		if n > maxAtGateway {
			maxAtGateway = n
		}
	}

	gwCount := len(counts)
	lost := gwCount*numTxReplica - total
	if lost < 0 {
		lost = 0
	}

	return &models.ReplicaCounter{
		DevAddr:              devAddr,
		FCnt:                 fCnt,
		MaxReplicasAtGateway: maxAtGateway,
		TotalReceived:        total,
		TotalLost:            lost,
		GatewayCount:         gwCount,
	}
}
