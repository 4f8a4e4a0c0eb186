package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried in result.name of the gateway-server event stream.
const (
	NameUplinkReceive   = "gs.up.receive"
	NameDownlinkSend    = "gs.down.send"
	NameStatusReceive   = "gs.status.receive"
	NameConnectionStats = "gs.gateway.connection.stats"
)

// Messages shorter than this cannot be a complete envelope and are heartbeat
// noise on the stream.
const minEnvelopeSize = 100

// DecodeError reports a malformed or incomplete envelope. The decoder treats
// it as terminal for the message; a malformed event is dropped, never
// partially stored.
type DecodeError struct {
	Event string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %s: %v", e.Event, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Envelope is the outer frame of every event on the stream.
type Envelope struct {
	Result Result `json:"result"`
}

// Result carries the event name, the gateway identity and the
// name-specific payload.
type Result struct {
	Name        string            `json:"name"`
	Time        time.Time         `json:"time"`
	Identifiers []Identifier      `json:"identifiers"`
	Data        json.RawMessage   `json:"data"`
	Context     map[string]string `json:"context"`
	Visibility  Visibility        `json:"visibility"`
	UniqueID    string            `json:"unique_id"`
}

// Identifier wraps the gateway identity block.
type Identifier struct {
	GatewayIDs GatewayIdentifiers `json:"gateway_ids"`
}

// GatewayIdentifiers names the gateway an event belongs to.
type GatewayIdentifiers struct {
	GatewayID string `json:"gateway_id"`
	EUI       string `json:"eui"`
}

// Visibility lists the rights under which the event was published.
type Visibility struct {
	Rights []string `json:"rights"`
}

// GatewayID returns the gateway identity of the first identifier block.
func (e *Envelope) GatewayID() string {
	if len(e.Result.Identifiers) == 0 {
		return ""
	}
	return e.Result.Identifiers[0].GatewayIDs.GatewayID
}

// GatewayEUI returns the gateway EUI of the first identifier block.
func (e *Envelope) GatewayEUI() string {
	if len(e.Result.Identifiers) == 0 {
		return ""
	}
	return e.Result.Identifiers[0].GatewayIDs.EUI
}

// TenantID returns the tenant the event was published under, if any.
func (e *Envelope) TenantID() string {
	return e.Result.Context["tenant-id"]
}

// ParseEnvelope parses one raw stream message into an envelope. The producer
// double-encodes the envelope (a JSON string whose content is the envelope
// JSON), so a leading quote triggers one extra decode pass. Undersized
// messages, unparseable JSON and envelopes without an event name or gateway
// identity all fail closed with a DecodeError.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	if len(raw) < minEnvelopeSize {
		return nil, &DecodeError{Event: "envelope", Err: fmt.Errorf("message too short: %d bytes", len(raw))}
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, &DecodeError{Event: "envelope", Err: err}
		}
		raw = []byte(inner)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Event: "envelope", Err: err}
	}

	if env.Result.Name == "" {
		return nil, &DecodeError{Event: "envelope", Field: "result.name", Err: fmt.Errorf("missing event name")}
	}
	if env.GatewayID() == "" {
		return nil, &DecodeError{Event: env.Result.Name, Field: "result.identifiers", Err: fmt.Errorf("missing gateway identity")}
	}

	return &env, nil
}
