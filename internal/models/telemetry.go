package models

import (
	"time"

	"github.com/google/uuid"
)

// UplinkRecord represents one physical-layer reception of one LoRaWAN frame
// at one gateway. Many records share the same (dev_addr, gateway_id, f_cnt)
// key; that is the replication signal, not an error.
type UplinkRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DevAddr       string    `json:"devAddr" db:"dev_addr"`
	DeviceID      *string   `json:"deviceId,omitempty" db:"device_id"`
	ApplicationID *string   `json:"applicationId,omitempty" db:"application_id"`
	GatewayID     string    `json:"gatewayId" db:"gateway_id"`
	GatewayEUI    string    `json:"gatewayEui" db:"gateway_eui"`

	// Frame fields
	MType      *string `json:"mType,omitempty" db:"m_type"`
	FCtrlADR   *bool   `json:"fCtrlAdr,omitempty" db:"f_ctrl_adr"`
	FCnt       *int    `json:"fCnt,omitempty" db:"f_cnt"`
	FPort      *int    `json:"fPort,omitempty" db:"f_port"`
	RawPayload string  `json:"rawPayload" db:"raw_payload"`
	FRMPayload *string `json:"frmPayload,omitempty" db:"frm_payload"`

	// Join-request fields, present only for join traffic
	JoinEUI  *string `json:"joinEui,omitempty" db:"join_eui"`
	DevEUI   *string `json:"devEui,omitempty" db:"dev_eui"`
	DevNonce *string `json:"devNonce,omitempty" db:"dev_nonce"`

	// Radio parameters
	Bandwidth       int     `json:"bandwidth" db:"bandwidth"`
	SpreadingFactor int     `json:"spreadingFactor" db:"spreading_factor"`
	CodingRate      string  `json:"codingRate" db:"coding_rate"`
	Frequency       uint64  `json:"frequency" db:"frequency"`
	PayloadSize     int     `json:"payloadSize" db:"payload_size"`
	Airtime         float64 `json:"airtime" db:"airtime"` // milliseconds

	// Signal quality
	RSSI         *float64 `json:"rssi,omitempty" db:"rssi"`
	ChannelRSSI  *float64 `json:"channelRssi,omitempty" db:"channel_rssi"`
	SNR          *float64 `json:"snr,omitempty" db:"snr"`
	ChannelIndex *int     `json:"channelIndex,omitempty" db:"channel_index"`

	// Timing
	Timestamp    *int64     `json:"timestamp,omitempty" db:"timestamp"`
	GPSTime      *time.Time `json:"gpsTime,omitempty" db:"gps_time"`
	EventTime    time.Time  `json:"eventTime" db:"event_time"`
	ReceivedAtGW time.Time  `json:"receivedAtGw" db:"received_at_gw"`
	ReceivedAt   time.Time  `json:"receivedAt" db:"received_at"`
}

// DownlinkRecord represents one frame transmitted by a gateway.
type DownlinkRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	GatewayID  string    `json:"gatewayId" db:"gateway_id"`
	GatewayEUI string    `json:"gatewayEui" db:"gateway_eui"`
	RawPayload string    `json:"rawPayload" db:"raw_payload"`

	Bandwidth       int    `json:"bandwidth" db:"bandwidth"`
	SpreadingFactor int    `json:"spreadingFactor" db:"spreading_factor"`
	CodingRate      string `json:"codingRate" db:"coding_rate"`
	Frequency       uint64 `json:"frequency" db:"frequency"`

	Timestamp             *int64   `json:"timestamp,omitempty" db:"timestamp"`
	ConcentratorTimestamp *int64   `json:"concentratorTimestamp,omitempty" db:"concentrator_timestamp"`
	TXPower               *float64 `json:"txPower,omitempty" db:"tx_power"`
	InvertPolarization    *bool    `json:"invertPolarization,omitempty" db:"invert_polarization"`

	EventTime time.Time `json:"eventTime" db:"event_time"`
}

// GatewayVersions holds the software/firmware versions a gateway reports.
type GatewayVersions struct {
	GatewayServer *string `json:"gatewayServer,omitempty" db:"gateway_server"`
	FPGA          *string `json:"fpga,omitempty" db:"fpga"`
	HAL           *string `json:"hal,omitempty" db:"hal"`
}

// GatewayLocation holds a reported antenna location.
type GatewayLocation struct {
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" db:"altitude"`
	Source    *string  `json:"source,omitempty" db:"source"`
}

// GatewayMetrics holds the packet-forwarder counters a gateway reports.
type GatewayMetrics struct {
	TXIn *float64 `json:"txin,omitempty" db:"txin"`
	TXOK *float64 `json:"txok,omitempty" db:"txok"`
	LPPS *float64 `json:"lpps,omitempty" db:"lpps"`
	RXIn *float64 `json:"rxin,omitempty" db:"rxin"`
	RXOK *float64 `json:"rxok,omitempty" db:"rxok"`
	RXFW *float64 `json:"rxfw,omitempty" db:"rxfw"`
	ACKR *float64 `json:"ackr,omitempty" db:"ackr"`
}

// GatewayStatusSnapshot represents one periodic gateway health report.
// Absent sub-objects yield null fields, never an error.
type GatewayStatusSnapshot struct {
	ID         uuid.UUID `json:"id" db:"id"`
	GatewayID  string    `json:"gatewayId" db:"gateway_id"`
	GatewayEUI string    `json:"gatewayEui" db:"gateway_eui"`

	Time     *time.Time `json:"time,omitempty" db:"time"`
	BootTime *time.Time `json:"bootTime,omitempty" db:"boot_time"`
	IP       *string    `json:"ip,omitempty" db:"ip"`

	Versions GatewayVersions `json:"versions"`
	Location GatewayLocation `json:"location"`
	Metrics  GatewayMetrics  `json:"metrics"`

	EventTime time.Time `json:"eventTime" db:"event_time"`
}

// GatewayConnectionStatus represents one connection-lifecycle snapshot,
// used to derive gateway availability.
type GatewayConnectionStatus struct {
	ID         uuid.UUID `json:"id" db:"id"`
	GatewayID  string    `json:"gatewayId" db:"gateway_id"`
	GatewayEUI string    `json:"gatewayEui" db:"gateway_eui"`

	Protocol    *string    `json:"protocol,omitempty" db:"protocol"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty" db:"connected_at"`

	LastStatusReceivedAt   *time.Time `json:"lastStatusReceivedAt,omitempty" db:"last_status_received_at"`
	LastStatusTime         *time.Time `json:"lastStatusTime,omitempty" db:"last_status_time"`
	LastUplinkReceivedAt   *time.Time `json:"lastUplinkReceivedAt,omitempty" db:"last_uplink_received_at"`
	LastDownlinkReceivedAt *time.Time `json:"lastDownlinkReceivedAt,omitempty" db:"last_downlink_received_at"`
	BootTime               *time.Time `json:"bootTime,omitempty" db:"boot_time"`
	IP                     *string    `json:"ip,omitempty" db:"ip"`

	Versions GatewayVersions `json:"versions"`
	Location GatewayLocation `json:"location"`
	Metrics  GatewayMetrics  `json:"metrics"`

	UplinkCount   *int64 `json:"uplinkCount,omitempty" db:"uplink_count"`
	DownlinkCount *int64 `json:"downlinkCount,omitempty" db:"downlink_count"`

	// Round-trip-time summary
	RTTMin    *float64 `json:"rttMin,omitempty" db:"rtt_min"`
	RTTMax    *float64 `json:"rttMax,omitempty" db:"rtt_max"`
	RTTMedian *float64 `json:"rttMedian,omitempty" db:"rtt_median"`
	RTTCount  *int64   `json:"rttCount,omitempty" db:"rtt_count"`

	// Per-sub-band duty-cycle summary, fields keyed by list position
	// ("min_freq_band_0", "dl_utilization_band_1", ...)
	SubBands Variables `json:"subBands,omitempty" db:"sub_bands"`

	EventTime time.Time `json:"eventTime" db:"event_time"`
}

// ReplicaCounter holds the live replica/loss counters of one logical uplink
// frame, keyed by (dev_addr, f_cnt) across all gateways that saw it.
type ReplicaCounter struct {
	DevAddr string `json:"devAddr" db:"dev_addr"`
	FCnt    int    `json:"fCnt" db:"f_cnt"`

	MaxReplicasAtGateway int `json:"maxReplicasAtGateway" db:"max_replicas_at_gateway"`
	TotalReceived        int `json:"totalReceived" db:"total_received"`
	TotalLost            int `json:"totalLost" db:"total_lost"`
	GatewayCount         int `json:"gatewayCount" db:"gateway_count"`

	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DeviceGatewayRelation maps a (dev_addr, gateway) pair to the durable device
// identity last seen using that address at that gateway. A device address can
// map to multiple historical relations when reused by a different device.
type DeviceGatewayRelation struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DevAddr       string    `json:"devAddr" db:"dev_addr"`
	GatewayID     string    `json:"gatewayId" db:"gateway_id"`
	DeviceID      string    `json:"deviceId" db:"device_id"`
	ApplicationID string    `json:"applicationId" db:"application_id"`
	LastFCnt      int       `json:"lastFCnt" db:"last_f_cnt"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// FrameArrival is the per-logical-frame window summary used by aggregation:
// the first arrival across all gateways and the cheapest reception's airtime.
type FrameArrival struct {
	FCnt            int       `json:"fCnt" db:"f_cnt"`
	FirstReceivedAt time.Time `json:"firstReceivedAt" db:"first_received_at"`
	MinAirtime      float64   `json:"minAirtime" db:"min_airtime"` // milliseconds
}

// MonitoredGateway is one member of the working set of gateways the decoder
// and scheduler currently track.
type MonitoredGateway struct {
	GatewayID string    `json:"gatewayId" db:"gateway_id"`
	AddedAt   time.Time `json:"addedAt" db:"added_at"`
}
