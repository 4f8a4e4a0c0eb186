package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func TestUplinkExists(t *testing.T) {
	store, mock := newMockStore(t)
	receivedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("26011AD3", "gw-field-01", receivedAt).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.UplinkExists(context.Background(), "26011AD3", "gw-field-01", receivedAt)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUplinkReplicas(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT gateway_id, COUNT(*)")).
		WithArgs("26011AD3", 42).
		WillReturnRows(sqlmock.NewRows([]string{"gateway_id", "count"}).
			AddRow("gw-field-01", 3).
			AddRow("gw-field-02", 2))

	counts, err := store.CountUplinkReplicas(context.Background(), "26011AD3", 42)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"gw-field-01": 3, "gw-field-02": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReplicaCounterNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE replica_counters SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateReplicaCounter(context.Background(), &models.ReplicaCounter{
		DevAddr: "26011AD3",
		FCnt:    42,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplicaReconcileTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO replica_counters")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gateway_id, COUNT(*)")).
		WithArgs("26011AD3", 42).
		WillReturnRows(sqlmock.NewRows([]string{"gateway_id", "count"}).AddRow("gw-field-01", 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE replica_counters SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.AcquireReplicaCounter(ctx, "26011AD3", 42))

	counts, err := tx.CountUplinkReplicas(ctx, "26011AD3", 42)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"gw-field-01": 2}, counts)

	require.NoError(t, tx.UpdateReplicaCounter(ctx, &models.ReplicaCounter{
		DevAddr: "26011AD3", FCnt: 42,
		MaxReplicasAtGateway: 2, TotalReceived: 2, TotalLost: 1, GatewayCount: 1,
	}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCheckpointNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, watermark, updated_at FROM aggregation_checkpoints")).
		WithArgs("kpi-scheduler").
		WillReturnRows(sqlmock.NewRows([]string{"name", "watermark", "updated_at"}))

	_, err := store.GetCheckpoint(context.Background(), "kpi-scheduler")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndGetCheckpoint(t *testing.T) {
	store, mock := newMockStore(t)
	watermark := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO aggregation_checkpoints")).
		WithArgs("kpi-scheduler", watermark, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, watermark, updated_at FROM aggregation_checkpoints")).
		WithArgs("kpi-scheduler").
		WillReturnRows(sqlmock.NewRows([]string{"name", "watermark", "updated_at"}).
			AddRow("kpi-scheduler", watermark, time.Now()))

	err := store.SaveCheckpoint(context.Background(), &models.AggregationCheckpoint{
		Name:      "kpi-scheduler",
		Watermark: watermark,
	})
	require.NoError(t, err)

	cp, err := store.GetCheckpoint(context.Background(), "kpi-scheduler")
	require.NoError(t, err)
	assert.True(t, cp.Watermark.Equal(watermark))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMonitoredGateways(t *testing.T) {
	store, mock := newMockStore(t)
	added := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT gateway_id, added_at FROM monitored_gateways")).
		WillReturnRows(sqlmock.NewRows([]string{"gateway_id", "added_at"}).
			AddRow("gw-field-01", added).
			AddRow("gw-field-02", added))

	gws, err := store.ListMonitoredGateways(context.Background())
	require.NoError(t, err)
	require.Len(t, gws, 2)
	assert.Equal(t, "gw-field-01", gws[0].GatewayID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMonitoredGatewayNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM monitored_gateways")).
		WithArgs("gw-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RemoveMonitoredGateway(context.Background(), "gw-missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
