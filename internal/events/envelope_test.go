package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const uplinkEnvelope = `{
  "result": {
    "name": "gs.up.receive",
    "time": "2026-03-01T10:00:00Z",
    "identifiers": [{"gateway_ids": {"gateway_id": "gw-field-01", "eui": "58A0CBFFFE800001"}}],
    "context": {"tenant-id": "CgN0dGk="},
    "visibility": {"rights": ["RIGHT_GATEWAY_TRAFFIC_READ"]},
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
          "timestamp": 3461740123,
          "time": "2026-03-01T09:59:59.900Z"
        },
        "rx_metadata": [{
          "gateway_ids": {"gateway_id": "gw-field-01", "eui": "58A0CBFFFE800001"},
          "rssi": -42,
          "channel_rssi": -42,
          "snr": 9.75,
          "channel_index": 2,
          "received_at": "2026-03-01T09:59:59.950Z"
        }],
        "received_at": "2026-03-01T10:00:00.010Z"
      }
    }
  }
}`

func TestParseEnvelopeUplink(t *testing.T) {
	env, err := ParseEnvelope([]byte(uplinkEnvelope))
	require.NoError(t, err)
	require.Equal(t, NameUplinkReceive, env.Result.Name)
	require.Equal(t, "gw-field-01", env.GatewayID())
	require.Equal(t, "58A0CBFFFE800001", env.GatewayEUI())
	require.Equal(t, "CgN0dGk=", env.TenantID())

	up, err := env.UplinkReceive()
	require.NoError(t, err)
	require.NotNil(t, up.Message.Payload.MACPayload)

	fhdr := up.Message.Payload.MACPayload.FHdr
	require.Equal(t, "26011AD3", fhdr.DevAddr)
	require.Equal(t, 39, fhdr.FCnt)
	require.True(t, fhdr.FCtrl.ADR)

	require.Equal(t, uint64(868300000), up.Message.Settings.Frequency)
	require.Equal(t, 7, up.Message.Settings.DataRate.LoRa.SpreadingFactor)
	require.Equal(t, 9.75, *up.Message.RxMetadata[0].SNR)
}

func TestParseEnvelopeDoubleEncoded(t *testing.T) {
	quoted, err := json.Marshal(uplinkEnvelope)
	require.NoError(t, err)

	env, err := ParseEnvelope(quoted)
	require.NoError(t, err)
	require.Equal(t, NameUplinkReceive, env.Result.Name)
	require.Equal(t, "gw-field-01", env.GatewayID())
}

func TestParseEnvelopeFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"too short", `{"result":{"name":"gs.up.receive"}}`},
		{"not json", strings.Repeat("x", 200)},
		{"missing name", `{"result":{"time":"2026-03-01T10:00:00Z","identifiers":[{"gateway_ids":{"gateway_id":"gw-1"}}],"unique_id":"` + strings.Repeat("0", 60) + `"}}`},
		{"missing gateway", `{"result":{"name":"gs.up.receive","time":"2026-03-01T10:00:00Z","identifiers":[],"unique_id":"` + strings.Repeat("0", 60) + `"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.raw))
			require.Error(t, err)
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
		})
	}
}

func TestUplinkReceiveRequiresRxMetadata(t *testing.T) {
	raw := `{"result":{"name":"gs.up.receive","time":"2026-03-01T10:00:00Z","identifiers":[{"gateway_ids":{"gateway_id":"gw-1"}}],"data":{"message":{"raw_payload":"AA==","rx_metadata":[]}}}}`
	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)

	_, err = env.UplinkReceive()
	require.Error(t, err)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "message.rx_metadata", derr.Field)
}

func TestConnectionStatsDecode(t *testing.T) {
	raw := `{
	  "result": {
	    "name": "gs.gateway.connection.stats",
	    "time": "2026-03-01T10:05:00Z",
	    "identifiers": [{"gateway_ids": {"gateway_id": "gw-field-01", "eui": "58A0CBFFFE800001"}}],
	    "data": {
	      "connected_at": "2026-03-01T08:00:00Z",
	      "protocol": "udp",
	      "last_status_received_at": "2026-03-01T10:04:30Z",
	      "last_status": {
	        "time": "2026-03-01T10:04:30Z",
	        "boot_time": "2026-03-01T07:59:00Z",
	        "versions": {"ttn-lw-gateway-server": "3.30.0", "hal": "5.0.1"},
	        "antenna_locations": [{"latitude": 46.1, "longitude": 8.9, "altitude": 210, "source": "SOURCE_REGISTRY"}],
	        "ip": ["10.0.0.7"],
	        "metrics": {"rxin": 120, "rxok": 118, "rxfw": 118, "ackr": 100, "txin": 4, "txok": 4}
	      },
	      "round_trip_times": {"min": "0.021s", "max": "0.087s", "median": "0.034s", "count": 20},
	      "sub_bands": [{"min_frequency": "868000000", "max_frequency": "868600000", "downlink_utilization_limit": 0.01, "downlink_utilization": 0.0012}],
	      "uplink_count": "3521",
	      "downlink_count": "87"
	    }
	  }
	}`
	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)

	stats, err := env.ConnectionStats()
	require.NoError(t, err)

	require.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), stats.ConnectedAt.UTC())
	require.Equal(t, "3.30.0", stats.LastStatus.Versions["ttn-lw-gateway-server"])
	require.Equal(t, int64(3521), *stats.UplinkCount)
	require.Equal(t, uint64(868000000), stats.SubBands[0].MinFrequency)
	require.InDelta(t, 0.034, *stats.RoundTripTimes.Median.Seconds(), 1e-9)
	require.Equal(t, int64(20), *stats.RoundTripTimes.Count)
}

func TestDownlinkSendDecode(t *testing.T) {
	raw := `{
	  "result": {
	    "name": "gs.down.send",
	    "time": "2026-03-01T10:00:02Z",
	    "identifiers": [{"gateway_ids": {"gateway_id": "gw-field-01", "eui": "58A0CBFFFE800001"}}],
	    "data": {
	      "raw_payload": "YNMaASaFJwAD/w==",
	      "scheduled": {
	        "data_rate": {"lora": {"bandwidth": 125000, "spreading_factor": 7, "coding_rate": "4/5"}},
	        "frequency": "868300000",
	        "timestamp": 3462740123,
	        "concentrator_timestamp": "3462740123000",
	        "downlink": {"tx_power": 16.15, "invert_polarization": true}
	      }
	    }
	  }
	}`
	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)

	dl, err := env.DownlinkSend()
	require.NoError(t, err)
	require.Equal(t, uint64(868300000), dl.Scheduled.Frequency)
	require.Equal(t, int64(3462740123000), *dl.Scheduled.ConcentratorTimestamp)
	require.Equal(t, 16.15, *dl.Scheduled.Downlink.TxPower)
	require.True(t, *dl.Scheduled.Downlink.InvertPolarization)
}
