package decoder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

// fakeStore implements the slice of storage.Store the decoder exercises.
// Unimplemented methods panic via the embedded nil interface.
type fakeStore struct {
	storage.Store

	relations []*models.DeviceGatewayRelation
	uplinks   []*models.UplinkRecord
	downlinks []*models.DownlinkRecord
	statuses  []*models.GatewayStatusSnapshot
	conns     []*models.GatewayConnectionStatus
	counters  map[string]*models.ReplicaCounter
}

func newFakeStore() *fakeStore {
	return &fakeStore{counters: make(map[string]*models.ReplicaCounter)}
}

func counterKey(devAddr string, fCnt int) string {
	return fmt.Sprintf("%s/%d", devAddr, fCnt)
}

func (f *fakeStore) BeginTx(ctx context.Context) (storage.Store, error) { return f, nil }
func (f *fakeStore) Commit() error                                      { return nil }
func (f *fakeStore) Rollback() error                                    { return nil }

func (f *fakeStore) ListRelations(ctx context.Context, devAddr, gatewayID string) ([]*models.DeviceGatewayRelation, error) {
	var out []*models.DeviceGatewayRelation
	for _, rel := range f.relations {
		if rel.DevAddr == devAddr && rel.GatewayID == gatewayID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRelation(ctx context.Context, rel *models.DeviceGatewayRelation) error {
	for _, existing := range f.relations {
		if existing.DevAddr == rel.DevAddr && existing.GatewayID == rel.GatewayID &&
			existing.DeviceID == rel.DeviceID && existing.ApplicationID == rel.ApplicationID {
			existing.LastFCnt = rel.LastFCnt
			return nil
		}
	}
	f.relations = append(f.relations, rel)
	return nil
}

func (f *fakeStore) UplinkExists(ctx context.Context, devAddr, gatewayID string, receivedAtGW time.Time) (bool, error) {
	for _, up := range f.uplinks {
		if up.DevAddr == devAddr && up.GatewayID == gatewayID && up.ReceivedAtGW.Equal(receivedAtGW) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateUplink(ctx context.Context, up *models.UplinkRecord) error {
	f.uplinks = append(f.uplinks, up)
	return nil
}

func (f *fakeStore) CreateDownlink(ctx context.Context, dl *models.DownlinkRecord) error {
	f.downlinks = append(f.downlinks, dl)
	return nil
}

func (f *fakeStore) CreateGatewayStatus(ctx context.Context, st *models.GatewayStatusSnapshot) error {
	f.statuses = append(f.statuses, st)
	return nil
}

func (f *fakeStore) CreateConnectionStatus(ctx context.Context, cs *models.GatewayConnectionStatus) error {
	f.conns = append(f.conns, cs)
	return nil
}

func (f *fakeStore) AcquireReplicaCounter(ctx context.Context, devAddr string, fCnt int) error {
	key := counterKey(devAddr, fCnt)
	if _, ok := f.counters[key]; !ok {
		f.counters[key] = &models.ReplicaCounter{DevAddr: devAddr, FCnt: fCnt}
	}
	return nil
}

func (f *fakeStore) CountUplinkReplicas(ctx context.Context, devAddr string, fCnt int) (map[string]int, error) {
	counts := make(map[string]int)
	for _, up := range f.uplinks {
		if up.DevAddr == devAddr && up.FCnt != nil && *up.FCnt == fCnt {
			counts[up.GatewayID]++
		}
	}
	return counts, nil
}

func (f *fakeStore) UpdateReplicaCounter(ctx context.Context, rc *models.ReplicaCounter) error {
	key := counterKey(rc.DevAddr, rc.FCnt)
	if _, ok := f.counters[key]; !ok {
		return storage.ErrNotFound
	}
	f.counters[key] = rc
	return nil
}

func TestResolverPicksClosestCounter(t *testing.T) {
	store := newFakeStore()
	store.relations = []*models.DeviceGatewayRelation{
		{DevAddr: "26011AD3", GatewayID: "gw-1", DeviceID: "sensor-a", ApplicationID: "app-1", LastFCnt: 100},
		{DevAddr: "26011AD3", GatewayID: "gw-1", DeviceID: "sensor-b", ApplicationID: "app-2", LastFCnt: 9000},
	}
	r := NewResolver(store)

	rel, err := r.Resolve(context.Background(), "26011AD3", "gw-1", 105)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "sensor-a", rel.DeviceID)

	rel, err = r.Resolve(context.Background(), "26011AD3", "gw-1", 8950)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "sensor-b", rel.DeviceID)
}

func TestResolverUnknownAddress(t *testing.T) {
	r := NewResolver(newFakeStore())

	rel, err := r.Resolve(context.Background(), "26019999", "gw-1", 10)
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func uplinkAt(devAddr, gatewayID string, fCnt int, receivedAt time.Time) *models.UplinkRecord {
	return &models.UplinkRecord{
		DevAddr:      devAddr,
		GatewayID:    gatewayID,
		FCnt:         &fCnt,
		ReceivedAtGW: receivedAt,
	}
}

func TestReconcilerCountsAcrossGateways(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.uplinks = []*models.UplinkRecord{
		uplinkAt("26011AD3", "gw-1", 42, base),
		uplinkAt("26011AD3", "gw-1", 42, base.Add(time.Second)),
		uplinkAt("26011AD3", "gw-2", 42, base.Add(2*time.Second)),
	}

	r := NewReconciler(store, 3)
	require.NoError(t, r.Reconcile(context.Background(), "26011AD3", 42))

	rc := store.counters[counterKey("26011AD3", 42)]
	require.NotNil(t, rc)
	assert.Equal(t, 3, rc.TotalReceived)
	assert.Equal(t, 2, rc.GatewayCount)
	assert.Equal(t, 2, rc.MaxReplicasAtGateway)
	assert.Equal(t, 3, rc.TotalLost) // 2 gateways * 3 expected - 3 received

	// Reconciling again recounts from storage and converges.
	require.NoError(t, r.Reconcile(context.Background(), "26011AD3", 42))
	assert.Equal(t, rc, store.counters[counterKey("26011AD3", 42)])
}

func TestComputeCounterClampsLoss(t *testing.T) {
	rc := computeCounter("26011AD3", 7, map[string]int{"gw-1": 4}, 3)
	assert.Equal(t, 0, rc.TotalLost)
	assert.Equal(t, 4, rc.MaxReplicasAtGateway)
}

const testUplinkEnvelope = `{
  "result": {
    "name": "gs.up.receive",
    "time": "2026-03-01T10:00:00Z",
    "identifiers": [{"gateway_ids": {"gateway_id": "gw-field-01", "eui": "58A0CBFFFE800001"}}],
    "unique_id": "01HV0000000000000000000000",
    "data": {
      "message": {
        "raw_payload": "QNMaASaAJwAB1oYkzBQ=",
        "payload": {
          "m_hdr": {"m_type": "UNCONFIRMED_UP"},
          "mac_payload": {
            "f_hdr": {"dev_addr": "26011AD3", "f_ctrl": {"adr": true}, "f_cnt": 39},
            "f_port": 1,
            "frm_payload": "1oYkzA=="
          }
        },
        "settings": {
          "data_rate": {"lora": {"bandwidth": 125000, "spreading_factor": 7, "coding_rate": "4/5"}},
          "frequency": "868300000",
          "timestamp": 3461740123
        },
        "rx_metadata": [{
          "gateway_ids": {"gateway_id": "gw-field-01"},
          "rssi": -42, "channel_rssi": -42, "snr": 9.75, "channel_index": 2,
          "received_at": "2026-03-01T09:59:59.950Z"
        }],
        "received_at": "2026-03-01T10:00:00.010Z"
      }
    }
  }
}`

func TestProcessUplink(t *testing.T) {
	store := newFakeStore()
	store.relations = []*models.DeviceGatewayRelation{
		{DevAddr: "26011AD3", GatewayID: "gw-field-01", DeviceID: "sensor-a", ApplicationID: "app-1", LastFCnt: 35},
	}
	d := New(store, 3, zerolog.Nop())

	require.NoError(t, d.Process(context.Background(), []byte(testUplinkEnvelope)))

	require.Len(t, store.uplinks, 1)
	up := store.uplinks[0]
	assert.Equal(t, "26011AD3", up.DevAddr)
	assert.Equal(t, "sensor-a", *up.DeviceID)
	assert.Equal(t, 39, *up.FCnt)
	assert.Equal(t, 14, up.PayloadSize)
	assert.Equal(t, 46.336, up.Airtime)
	assert.Equal(t, uint64(868300000), up.Frequency)

	rc := store.counters[counterKey("26011AD3", 39)]
	require.NotNil(t, rc)
	assert.Equal(t, 1, rc.TotalReceived)
	assert.Equal(t, 2, rc.TotalLost)
}

func TestProcessUplinkRedelivery(t *testing.T) {
	store := newFakeStore()
	d := New(store, 3, zerolog.Nop())

	require.NoError(t, d.Process(context.Background(), []byte(testUplinkEnvelope)))
	require.NoError(t, d.Process(context.Background(), []byte(testUplinkEnvelope)))

	assert.Len(t, store.uplinks, 1)
	rc := store.counters[counterKey("26011AD3", 39)]
	require.NotNil(t, rc)
	assert.Equal(t, 1, rc.TotalReceived)
}

func TestProcessUnknownEventSkipped(t *testing.T) {
	store := newFakeStore()
	d := New(store, 3, zerolog.Nop())

	raw := `{"result":{"name":"gs.down.tx.ack","time":"2026-03-01T10:00:00Z","identifiers":[{"gateway_ids":{"gateway_id":"gw-1"}}],"unique_id":"01HV0000000000000000000000"}}`
	require.NoError(t, d.Process(context.Background(), []byte(raw)))
	assert.Empty(t, store.uplinks)
	assert.Empty(t, store.downlinks)
}

func TestProcessApplicationUplink(t *testing.T) {
	store := newFakeStore()
	d := New(store, 3, zerolog.Nop())

	raw := `{
	  "end_device_ids": {
	    "device_id": "sensor-a",
	    "application_ids": {"application_id": "app-1"},
	    "dev_addr": "26011AD3"
	  },
	  "received_at": "2026-03-01T10:00:00Z",
	  "uplink_message": {
	    "f_cnt": 39,
	    "rx_metadata": [
	      {"gateway_ids": {"gateway_id": "gw-1"}, "received_at": "2026-03-01T10:00:00Z"},
	      {"gateway_ids": {"gateway_id": "gw-2"}, "received_at": "2026-03-01T10:00:00Z"}
	    ]
	  }
	}`
	require.NoError(t, d.ProcessApplicationUplink(context.Background(), []byte(raw)))

	require.Len(t, store.relations, 2)
	assert.Equal(t, "sensor-a", store.relations[0].DeviceID)
	assert.Equal(t, 39, store.relations[0].LastFCnt)

	// Same device again with a newer counter refreshes, not duplicates.
	raw2 := `{
	  "end_device_ids": {
	    "device_id": "sensor-a",
	    "application_ids": {"application_id": "app-1"},
	    "dev_addr": "26011AD3"
	  },
	  "uplink_message": {
	    "f_cnt": 40,
	    "rx_metadata": [{"gateway_ids": {"gateway_id": "gw-1"}, "received_at": "2026-03-01T10:01:00Z"}]
	  }
	}`
	require.NoError(t, d.ProcessApplicationUplink(context.Background(), []byte(raw2)))
	require.Len(t, store.relations, 2)
	assert.Equal(t, 40, store.relations[0].LastFCnt)
}
