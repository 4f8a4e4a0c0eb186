package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApplicationIDs names the application a device belongs to.
type ApplicationIDs struct {
	ApplicationID string `json:"application_id"`
}

// EndDeviceIDs is the full identity block of an application-layer uplink.
// Unlike the gateway stream, this feed knows which registered device the
// frame belongs to.
type EndDeviceIDs struct {
	DeviceID       string         `json:"device_id"`
	ApplicationIDs ApplicationIDs `json:"application_ids"`
	DevEUI         string         `json:"dev_eui"`
	JoinEUI        string         `json:"join_eui"`
	DevAddr        string         `json:"dev_addr"`
}

// ApplicationUplinkMessage is the uplink block of an application-layer
// uplink.
type ApplicationUplinkMessage struct {
	FPort      *int         `json:"f_port"`
	FCnt       int          `json:"f_cnt"`
	FRMPayload string       `json:"frm_payload"`
	RxMetadata []RxMetadata `json:"rx_metadata"`
	Settings   TxSettings   `json:"settings"`
}

// ApplicationUplink is one message of the companion application-layer feed,
// used to learn and refresh device identity relations.
type ApplicationUplink struct {
	EndDeviceIDs  EndDeviceIDs             `json:"end_device_ids"`
	ReceivedAt    time.Time                `json:"received_at"`
	UplinkMessage ApplicationUplinkMessage `json:"uplink_message"`
}

// ParseApplicationUplink parses one application-feed message, failing closed
// when the identity fields a relation needs are missing.
func ParseApplicationUplink(raw []byte) (*ApplicationUplink, error) {
	var up ApplicationUplink
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, &DecodeError{Event: "application.uplink", Err: err}
	}

	if up.EndDeviceIDs.DeviceID == "" {
		return nil, &DecodeError{Event: "application.uplink", Field: "end_device_ids.device_id", Err: fmt.Errorf("missing device identity")}
	}
	if up.EndDeviceIDs.DevAddr == "" {
		return nil, &DecodeError{Event: "application.uplink", Field: "end_device_ids.dev_addr", Err: fmt.Errorf("missing device address")}
	}

	return &up, nil
}
