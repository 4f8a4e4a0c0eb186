package decoder

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/events"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/pkg/airtime"
)

// Decoder turns raw stream messages into typed telemetry rows. Each message
// is handled independently; a bad message is dropped with a log line and
// never takes the stream down.
type Decoder struct {
	store      storage.Store
	resolver   *Resolver
	reconciler *Reconciler
	log        zerolog.Logger
}

// New creates a decoder writing to store. numTxReplica is the per-frame
// transmission count used by replica reconciliation.
func New(store storage.Store, numTxReplica int, log zerolog.Logger) *Decoder {
	return &Decoder{
		store:      store,
		resolver:   NewResolver(store),
		reconciler: NewReconciler(store, numTxReplica),
		log:        log.With().Str("component", "decoder").Logger(),
	}
}

// Process decodes and persists one gateway-stream message. A DecodeError
// return means the message is permanently unprocessable; any other error is
// transient and the message may be redelivered.
func (d *Decoder) Process(ctx context.Context, raw []byte) error {
	env, err := events.ParseEnvelope(raw)
	if err != nil {
		return err
	}

	switch env.Result.Name {
	case events.NameUplinkReceive:
		return d.handleUplink(ctx, env)
	case events.NameDownlinkSend:
		return d.handleDownlink(ctx, env)
	case events.NameStatusReceive:
		return d.handleStatus(ctx, env)
	case events.NameConnectionStats:
		return d.handleConnectionStats(ctx, env)
	default:
		d.log.Debug().Str("event", env.Result.Name).Msg("event not processed")
		return nil
	}
}

func (d *Decoder) handleUplink(ctx context.Context, env *events.Envelope) error {
	data, err := env.UplinkReceive()
	if err != nil {
		return err
	}

	msg := data.Message
	rx := msg.RxMetadata[0]

	if msg.Settings.DataRate.LoRa == nil {
		return &events.DecodeError{Event: env.Result.Name, Field: "settings.data_rate.lora", Err: fmt.Errorf("missing modulation parameters")}
	}
	lora := msg.Settings.DataRate.LoRa

	payload, err := base64.StdEncoding.DecodeString(msg.RawPayload)
	if err != nil {
		return &events.DecodeError{Event: env.Result.Name, Field: "message.raw_payload", Err: err}
	}

	toa, err := airtime.Compute(airtime.DefaultParams(len(payload), lora.SpreadingFactor))
	if err != nil {
		return &events.DecodeError{Event: env.Result.Name, Field: "settings.data_rate.lora", Err: err}
	}

	up := &models.UplinkRecord{
		GatewayID:  env.GatewayID(),
		GatewayEUI: env.GatewayEUI(),
		RawPayload: msg.RawPayload,

		Bandwidth:       lora.Bandwidth,
		SpreadingFactor: lora.SpreadingFactor,
		CodingRate:      lora.CodingRate,
		Frequency:       msg.Settings.Frequency,
		PayloadSize:     len(payload),
		Airtime:         toa,

		RSSI:         rx.RSSI,
		ChannelRSSI:  rx.ChannelRSSI,
		SNR:          rx.SNR,
		ChannelIndex: rx.ChannelIndex,

		GPSTime:      rx.GPSTime,
		EventTime:    env.Result.Time,
		ReceivedAtGW: rx.ReceivedAt,
		ReceivedAt:   msg.ReceivedAt,
	}
	if msg.Settings.Timestamp != 0 {
		ts := msg.Settings.Timestamp
		up.Timestamp = &ts
	}

	if p := msg.Payload; p != nil {
		if p.MHdr.MType != "" {
			mType := p.MHdr.MType
			up.MType = &mType
		}
		if mac := p.MACPayload; mac != nil {
			up.FPort = mac.FPort
			if mac.FRMPayload != "" {
				frm := mac.FRMPayload
				up.FRMPayload = &frm
			}
			if fhdr := mac.FHdr; fhdr != nil {
				up.DevAddr = fhdr.DevAddr
				adr := fhdr.FCtrl.ADR
				up.FCtrlADR = &adr
				fCnt := fhdr.FCnt
				up.FCnt = &fCnt
			}
		}
		if jr := p.JoinRequestPayload; jr != nil {
			up.JoinEUI = &jr.JoinEUI
			up.DevEUI = &jr.DevEUI
			up.DevNonce = &jr.DevNonce
		}
	}

	if up.DevAddr != "" && up.FCnt != nil {
		rel, err := d.resolver.Resolve(ctx, up.DevAddr, up.GatewayID, *up.FCnt)
		if err != nil {
			return err
		}
		if rel != nil {
			up.DeviceID = &rel.DeviceID
			up.ApplicationID = &rel.ApplicationID
		}
	}

	// Redelivered messages stop here instead of inflating the counters.
	exists, err := d.store.UplinkExists(ctx, up.DevAddr, up.GatewayID, up.ReceivedAtGW)
	if err != nil {
		return fmt.Errorf("uplink existence check: %w", err)
	}
	if exists {
		d.log.Debug().
			Str("dev_addr", up.DevAddr).
			Str("gateway_id", up.GatewayID).
			Time("received_at_gw", up.ReceivedAtGW).
			Msg("duplicate uplink dropped")
		return nil
	}

	if err := d.store.CreateUplink(ctx, up); err != nil {
		return fmt.Errorf("store uplink: %w", err)
	}

	if up.DevAddr != "" && up.FCnt != nil {
		if err := d.reconciler.Reconcile(ctx, up.DevAddr, *up.FCnt); err != nil {
			return err
		}
	}

	return nil
}

func (d *Decoder) handleDownlink(ctx context.Context, env *events.Envelope) error {
	data, err := env.DownlinkSend()
	if err != nil {
		return err
	}

	dl := &models.DownlinkRecord{
		GatewayID:  env.GatewayID(),
		GatewayEUI: env.GatewayEUI(),
		RawPayload: data.RawPayload,

		Frequency: data.Scheduled.Frequency,
		Timestamp: data.Scheduled.Timestamp,

		ConcentratorTimestamp: data.Scheduled.ConcentratorTimestamp,
		TXPower:               data.Scheduled.Downlink.TxPower,
		InvertPolarization:    data.Scheduled.Downlink.InvertPolarization,

		EventTime: env.Result.Time,
	}
	if lora := data.Scheduled.DataRate.LoRa; lora != nil {
		dl.Bandwidth = lora.Bandwidth
		dl.SpreadingFactor = lora.SpreadingFactor
		dl.CodingRate = lora.CodingRate
	}

	if err := d.store.CreateDownlink(ctx, dl); err != nil {
		return fmt.Errorf("store downlink: %w", err)
	}
	return nil
}

func (d *Decoder) handleStatus(ctx context.Context, env *events.Envelope) error {
	data, err := env.StatusReceive()
	if err != nil {
		return err
	}

	st := &models.GatewayStatusSnapshot{
		GatewayID:  env.GatewayID(),
		GatewayEUI: env.GatewayEUI(),
		Time:       data.Time,
		BootTime:   data.BootTime,
		EventTime:  env.Result.Time,
	}
	fillStatusFields(data, &st.IP, &st.Versions, &st.Location, &st.Metrics)

	if err := d.store.CreateGatewayStatus(ctx, st); err != nil {
		return fmt.Errorf("store gateway status: %w", err)
	}
	return nil
}

func (d *Decoder) handleConnectionStats(ctx context.Context, env *events.Envelope) error {
	data, err := env.ConnectionStats()
	if err != nil {
		return err
	}

	cs := &models.GatewayConnectionStatus{
		GatewayID:  env.GatewayID(),
		GatewayEUI: env.GatewayEUI(),

		Protocol:    data.Protocol,
		ConnectedAt: data.ConnectedAt,

		LastStatusReceivedAt:   data.LastStatusReceivedAt,
		LastUplinkReceivedAt:   data.LastUplinkReceivedAt,
		LastDownlinkReceivedAt: data.LastDownlinkReceivedAt,

		UplinkCount:   data.UplinkCount,
		DownlinkCount: data.DownlinkCount,

		EventTime: env.Result.Time,
	}

	if ls := data.LastStatus; ls != nil {
		cs.LastStatusTime = ls.Time
		cs.BootTime = ls.BootTime
		fillStatusFields(ls, &cs.IP, &cs.Versions, &cs.Location, &cs.Metrics)
	}

	if rtt := data.RoundTripTimes; rtt != nil {
		cs.RTTMin = rtt.Min.Seconds()
		cs.RTTMax = rtt.Max.Seconds()
		cs.RTTMedian = rtt.Median.Seconds()
		cs.RTTCount = rtt.Count
	}

	if len(data.SubBands) > 0 {
		cs.SubBands = flattenSubBands(data.SubBands)
	}

	if err := d.store.CreateConnectionStatus(ctx, cs); err != nil {
		return fmt.Errorf("store connection status: %w", err)
	}
	return nil
}

// ProcessApplicationUplink learns device identity from one application-feed
// message: every gateway that received the frame gets its relation refreshed
// with the device's current frame counter.
func (d *Decoder) ProcessApplicationUplink(ctx context.Context, raw []byte) error {
	up, err := events.ParseApplicationUplink(raw)
	if err != nil {
		return err
	}

	ids := up.EndDeviceIDs
	for _, rx := range up.UplinkMessage.RxMetadata {
		if rx.GatewayIDs.GatewayID == "" {
			continue
		}
		rel := &models.DeviceGatewayRelation{
			DevAddr:       ids.DevAddr,
			GatewayID:     rx.GatewayIDs.GatewayID,
			DeviceID:      ids.DeviceID,
			ApplicationID: ids.ApplicationIDs.ApplicationID,
			LastFCnt:      up.UplinkMessage.FCnt,
		}
		if err := d.resolver.RecordSighting(ctx, rel); err != nil {
			return err
		}
	}

	return nil
}

func fillStatusFields(data *events.StatusReceiveData, ip **string, versions *models.GatewayVersions, loc *models.GatewayLocation, metrics *models.GatewayMetrics) {
	if len(data.IP) > 0 {
		first := data.IP[0]
		*ip = &first
	}

	if v, ok := data.Versions["ttn-lw-gateway-server"]; ok {
		versions.GatewayServer = &v
	}
	if v, ok := data.Versions["fpga"]; ok {
		versions.FPGA = &v
	}
	if v, ok := data.Versions["hal"]; ok {
		versions.HAL = &v
	}

	if len(data.AntennaLocations) > 0 {
		a := data.AntennaLocations[0]
		loc.Latitude = a.Latitude
		loc.Longitude = a.Longitude
		loc.Altitude = a.Altitude
		loc.Source = a.Source
	}

	metrics.TXIn = data.Metrics.TXIn
	metrics.TXOK = data.Metrics.TXOK
	metrics.LPPS = data.Metrics.LPPS
	metrics.RXIn = data.Metrics.RXIn
	metrics.RXOK = data.Metrics.RXOK
	metrics.RXFW = data.Metrics.RXFW
	metrics.ACKR = data.Metrics.ACKR
}

// flattenSubBands keys each sub-band's fields by its list position, the
// layout the KPI queries expect.
func flattenSubBands(bands []events.SubBand) models.Variables {
	out := models.Variables{}
	for i, b := range bands {
		out[fmt.Sprintf("min_freq_band_%d", i)] = b.MinFrequency
		out[fmt.Sprintf("max_freq_band_%d", i)] = b.MaxFrequency
		out[fmt.Sprintf("dl_utilization_limit_band_%d", i)] = b.DownlinkUtilizationLimit
		out[fmt.Sprintf("dl_utilization_band_%d", i)] = b.DownlinkUtilization
	}
	return out
}
