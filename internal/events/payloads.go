package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// LoRaDataRate holds the LoRa modulation parameters of a transmission.
// The gateway server encodes 64-bit integers as JSON strings.
type LoRaDataRate struct {
	Bandwidth       int    `json:"bandwidth"`
	SpreadingFactor int    `json:"spreading_factor"`
	CodingRate      string `json:"coding_rate"`
}

// DataRate wraps the modulation-specific data-rate block.
type DataRate struct {
	LoRa *LoRaDataRate `json:"lora"`
}

// TxSettings holds the radio settings an uplink was received with.
type TxSettings struct {
	DataRate  DataRate   `json:"data_rate"`
	Frequency uint64     `json:"frequency,string"`
	Timestamp int64      `json:"timestamp"`
	Time      *time.Time `json:"time"`
}

// FCtrl is the frame-control block of a data frame header.
type FCtrl struct {
	ADR bool `json:"adr"`
}

// FHdr is the frame header of a data frame.
type FHdr struct {
	DevAddr string `json:"dev_addr"`
	FCtrl   FCtrl  `json:"f_ctrl"`
	FCnt    int    `json:"f_cnt"`
}

// MACPayload is the MAC payload of a data frame.
type MACPayload struct {
	FHdr       *FHdr  `json:"f_hdr"`
	FPort      *int   `json:"f_port"`
	FRMPayload string `json:"frm_payload"`
}

// JoinRequestPayload carries the identity fields of a join request.
type JoinRequestPayload struct {
	JoinEUI  string `json:"join_eui"`
	DevEUI   string `json:"dev_eui"`
	DevNonce string `json:"dev_nonce"`
}

// MHdr is the MAC header of a frame.
type MHdr struct {
	MType string `json:"m_type"`
}

// FramePayload is the decoded PHY payload of an uplink.
type FramePayload struct {
	MHdr               MHdr                `json:"m_hdr"`
	MACPayload         *MACPayload         `json:"mac_payload"`
	JoinRequestPayload *JoinRequestPayload `json:"join_request_payload"`
}

// RxMetadata is the per-antenna reception report attached to an uplink.
type RxMetadata struct {
	GatewayIDs   GatewayIdentifiers `json:"gateway_ids"`
	RSSI         *float64           `json:"rssi"`
	ChannelRSSI  *float64           `json:"channel_rssi"`
	SNR          *float64           `json:"snr"`
	ChannelIndex *int               `json:"channel_index"`
	GPSTime      *time.Time         `json:"gps_time"`
	ReceivedAt   time.Time          `json:"received_at"`
}

// UplinkMessage is the message block of a gs.up.receive event.
type UplinkMessage struct {
	RawPayload string        `json:"raw_payload"`
	Payload    *FramePayload `json:"payload"`
	Settings   TxSettings    `json:"settings"`
	RxMetadata []RxMetadata  `json:"rx_metadata"`
	ReceivedAt time.Time     `json:"received_at"`
}

// UplinkReceiveData is the data block of a gs.up.receive event.
type UplinkReceiveData struct {
	Message UplinkMessage `json:"message"`
}

// DownlinkTx holds the transmit parameters of a scheduled downlink.
type DownlinkTx struct {
	TxPower            *float64 `json:"tx_power"`
	InvertPolarization *bool    `json:"invert_polarization"`
}

// ScheduledTx is the scheduled block of a gs.down.send event.
type ScheduledTx struct {
	DataRate              DataRate   `json:"data_rate"`
	Frequency             uint64     `json:"frequency,string"`
	Timestamp             *int64     `json:"timestamp"`
	ConcentratorTimestamp *int64     `json:"concentrator_timestamp,string"`
	Downlink              DownlinkTx `json:"downlink"`
}

// DownlinkSendData is the data block of a gs.down.send event.
type DownlinkSendData struct {
	RawPayload string      `json:"raw_payload"`
	Scheduled  ScheduledTx `json:"scheduled"`
}

// AntennaLocation is one reported antenna position.
type AntennaLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Source    *string  `json:"source"`
}

// StatusMetrics are the packet-forwarder counters of a status report.
type StatusMetrics struct {
	TXIn *float64 `json:"txin"`
	TXOK *float64 `json:"txok"`
	LPPS *float64 `json:"lpps"`
	RXIn *float64 `json:"rxin"`
	RXOK *float64 `json:"rxok"`
	RXFW *float64 `json:"rxfw"`
	ACKR *float64 `json:"ackr"`
}

// StatusReceiveData is the data block of a gs.status.receive event, and the
// last_status block of a connection-stats event.
type StatusReceiveData struct {
	Time             *time.Time        `json:"time"`
	BootTime         *time.Time        `json:"boot_time"`
	Versions         map[string]string `json:"versions"`
	AntennaLocations []AntennaLocation `json:"antenna_locations"`
	IP               []string          `json:"ip"`
	Metrics          StatusMetrics     `json:"metrics"`
}

// RoundTripTimes summarizes gateway round-trip-time measurements. The
// durations arrive as strings ("0.023s").
type RoundTripTimes struct {
	Min    Duration `json:"min"`
	Max    Duration `json:"max"`
	Median Duration `json:"median"`
	Count  *int64   `json:"count"`
}

// SubBand is the per-sub-band duty-cycle report of a connection-stats event.
type SubBand struct {
	MinFrequency             uint64  `json:"min_frequency,string"`
	MaxFrequency             uint64  `json:"max_frequency,string"`
	DownlinkUtilizationLimit float64 `json:"downlink_utilization_limit"`
	DownlinkUtilization      float64 `json:"downlink_utilization"`
}

// ConnectionStatsData is the data block of a gs.gateway.connection.stats
// event.
type ConnectionStatsData struct {
	ConnectedAt            *time.Time         `json:"connected_at"`
	Protocol               *string            `json:"protocol"`
	LastStatusReceivedAt   *time.Time         `json:"last_status_received_at"`
	LastUplinkReceivedAt   *time.Time         `json:"last_uplink_received_at"`
	LastDownlinkReceivedAt *time.Time         `json:"last_downlink_received_at"`
	LastStatus             *StatusReceiveData `json:"last_status"`
	RoundTripTimes         *RoundTripTimes    `json:"round_trip_times"`
	SubBands               []SubBand          `json:"sub_bands"`
	UplinkCount            *int64             `json:"uplink_count,string"`
	DownlinkCount          *int64             `json:"downlink_count,string"`
}

// Duration decodes a protobuf-style duration string ("1.5s") into a
// time.Duration, tolerating null.
type Duration struct {
	Valid bool
	Value time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Valid = false
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Valid = true
	d.Value = v
	return nil
}

// Seconds returns the duration in seconds, or nil when absent.
func (d Duration) Seconds() *float64 {
	if !d.Valid {
		return nil
	}
	s := d.Value.Seconds()
	return &s
}

// decodeData unmarshals the data block of an envelope into dst, failing
// closed on absent or malformed data.
func decodeData(env *Envelope, dst interface{}) error {
	if len(env.Result.Data) == 0 {
		return &DecodeError{Event: env.Result.Name, Field: "result.data", Err: fmt.Errorf("missing data block")}
	}
	if err := json.Unmarshal(env.Result.Data, dst); err != nil {
		return &DecodeError{Event: env.Result.Name, Field: "result.data", Err: err}
	}
	return nil
}

// UplinkReceive decodes the data block of a gs.up.receive envelope.
func (e *Envelope) UplinkReceive() (*UplinkReceiveData, error) {
	var d UplinkReceiveData
	if err := decodeData(e, &d); err != nil {
		return nil, err
	}
	if len(d.Message.RxMetadata) == 0 {
		return nil, &DecodeError{Event: e.Result.Name, Field: "message.rx_metadata", Err: fmt.Errorf("no reception metadata")}
	}
	return &d, nil
}

// DownlinkSend decodes the data block of a gs.down.send envelope.
func (e *Envelope) DownlinkSend() (*DownlinkSendData, error) {
	var d DownlinkSendData
	if err := decodeData(e, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// StatusReceive decodes the data block of a gs.status.receive envelope.
func (e *Envelope) StatusReceive() (*StatusReceiveData, error) {
	var d StatusReceiveData
	if err := decodeData(e, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ConnectionStats decodes the data block of a gs.gateway.connection.stats
// envelope.
func (e *Envelope) ConnectionStats() (*ConnectionStatsData, error) {
	var d ConnectionStatsData
	if err := decodeData(e, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
