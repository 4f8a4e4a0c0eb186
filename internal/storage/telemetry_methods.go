package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// CreateUplink stores one physical-layer uplink reception
func (s *PostgresStore) CreateUplink(ctx context.Context, up *models.UplinkRecord) error {
	if up.ID == uuid.Nil {
		up.ID = uuid.New()
	}

	if up.ReceivedAt.IsZero() {
		up.ReceivedAt = time.Now()
	}

	query := `
        INSERT INTO uplinks (
            id, dev_addr, device_id, application_id, gateway_id, gateway_eui,
            m_type, f_ctrl_adr, f_cnt, f_port, raw_payload, frm_payload,
            join_eui, dev_eui, dev_nonce,
            bandwidth, spreading_factor, coding_rate, frequency, payload_size, airtime,
            rssi, channel_rssi, snr, channel_index,
            timestamp, gps_time, event_time, received_at_gw, received_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		up.ID, up.DevAddr, up.DeviceID, up.ApplicationID, up.GatewayID, up.GatewayEUI,
		up.MType, up.FCtrlADR, up.FCnt, up.FPort, up.RawPayload, up.FRMPayload,
		up.JoinEUI, up.DevEUI, up.DevNonce,
		up.Bandwidth, up.SpreadingFactor, up.CodingRate, up.Frequency, up.PayloadSize, up.Airtime,
		up.RSSI, up.ChannelRSSI, up.SNR, up.ChannelIndex,
		up.Timestamp, up.GPSTime, up.EventTime, up.ReceivedAtGW, up.ReceivedAt,
	)

	return err
}

// UplinkExists reports whether a reception with the same identity has
// already been stored. Redelivered stream messages hit this check.
func (s *PostgresStore) UplinkExists(ctx context.Context, devAddr, gatewayID string, receivedAtGW time.Time) (bool, error) {
	var exists bool
	err := s.getDB().QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM uplinks
            WHERE dev_addr = $1 AND gateway_id = $2 AND received_at_gw = $3
        )`,
		devAddr, gatewayID, receivedAtGW,
	).Scan(&exists)
	return exists, err
}

const uplinkColumns = `
        id, dev_addr, device_id, application_id, gateway_id, gateway_eui,
        m_type, f_ctrl_adr, f_cnt, f_port, raw_payload, frm_payload,
        join_eui, dev_eui, dev_nonce,
        bandwidth, spreading_factor, coding_rate, frequency, payload_size, airtime,
        rssi, channel_rssi, snr, channel_index,
        timestamp, gps_time, event_time, received_at_gw, received_at`

func scanUplink(rows *sql.Rows) (*models.UplinkRecord, error) {
	up := &models.UplinkRecord{}
	err := rows.Scan(
		&up.ID, &up.DevAddr, &up.DeviceID, &up.ApplicationID, &up.GatewayID, &up.GatewayEUI,
		&up.MType, &up.FCtrlADR, &up.FCnt, &up.FPort, &up.RawPayload, &up.FRMPayload,
		&up.JoinEUI, &up.DevEUI, &up.DevNonce,
		&up.Bandwidth, &up.SpreadingFactor, &up.CodingRate, &up.Frequency, &up.PayloadSize, &up.Airtime,
		&up.RSSI, &up.ChannelRSSI, &up.SNR, &up.ChannelIndex,
		&up.Timestamp, &up.GPSTime, &up.EventTime, &up.ReceivedAtGW, &up.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return up, nil
}

// ListUplinksInWindow lists all receptions at one gateway that arrived in
// [start, end), ordered by arrival time
func (s *PostgresStore) ListUplinksInWindow(ctx context.Context, gatewayID string, start, end time.Time) ([]*models.UplinkRecord, error) {
	query := `
        SELECT ` + uplinkColumns + `
        FROM uplinks
        WHERE gateway_id = $1 AND received_at_gw >= $2 AND received_at_gw < $3
        ORDER BY received_at_gw ASC`

	rows, err := s.getDB().QueryContext(ctx, query, gatewayID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ups []*models.UplinkRecord
	for rows.Next() {
		up, err := scanUplink(rows)
		if err != nil {
			return nil, err
		}
		ups = append(ups, up)
	}

	return ups, rows.Err()
}

// MinUplinkArrival returns the earliest stored uplink arrival time, or nil
// when no uplinks exist
func (s *PostgresStore) MinUplinkArrival(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.getDB().QueryRowContext(ctx,
		"SELECT MIN(received_at_gw) FROM uplinks",
	).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// MaxUplinkArrival returns the latest stored uplink arrival time, or nil
// when no uplinks exist
func (s *PostgresStore) MaxUplinkArrival(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.getDB().QueryRowContext(ctx,
		"SELECT MAX(received_at_gw) FROM uplinks",
	).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// ListDeviceFrameCounters lists the frame counter of every reception of one
// device across all gateways that arrived in [start, end). Repeats in the
// result are replicas.
func (s *PostgresStore) ListDeviceFrameCounters(ctx context.Context, deviceID string, start, end time.Time) ([]int, error) {
	query := `
        SELECT f_cnt FROM uplinks
        WHERE device_id = $1 AND f_cnt IS NOT NULL
          AND received_at_gw >= $2 AND received_at_gw < $3`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []int
	for rows.Next() {
		var fCnt int
		if err := rows.Scan(&fCnt); err != nil {
			return nil, err
		}
		counters = append(counters, fCnt)
	}

	return counters, rows.Err()
}

// ListDeviceFrameArrivals summarizes each distinct logical frame of one
// device in [start, end): its earliest arrival across all gateways and the
// minimum airtime among its receptions. Ordered by frame counter.
func (s *PostgresStore) ListDeviceFrameArrivals(ctx context.Context, deviceID string, start, end time.Time) ([]*models.FrameArrival, error) {
	query := `
        SELECT f_cnt, MIN(received_at_gw), MIN(airtime)
        FROM uplinks
        WHERE device_id = $1 AND f_cnt IS NOT NULL
          AND received_at_gw >= $2 AND received_at_gw < $3
        GROUP BY f_cnt
        ORDER BY f_cnt ASC`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var arrivals []*models.FrameArrival
	for rows.Next() {
		a := &models.FrameArrival{}
		if err := rows.Scan(&a.FCnt, &a.FirstReceivedAt, &a.MinAirtime); err != nil {
			return nil, err
		}
		arrivals = append(arrivals, a)
	}

	return arrivals, rows.Err()
}

// CreateDownlink stores one transmitted downlink
func (s *PostgresStore) CreateDownlink(ctx context.Context, dl *models.DownlinkRecord) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}

	query := `
        INSERT INTO downlinks (
            id, gateway_id, gateway_eui, raw_payload,
            bandwidth, spreading_factor, coding_rate, frequency,
            timestamp, concentrator_timestamp, tx_power, invert_polarization,
            event_time
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.getDB().ExecContext(ctx, query,
		dl.ID, dl.GatewayID, dl.GatewayEUI, dl.RawPayload,
		dl.Bandwidth, dl.SpreadingFactor, dl.CodingRate, dl.Frequency,
		dl.Timestamp, dl.ConcentratorTimestamp, dl.TXPower, dl.InvertPolarization,
		dl.EventTime,
	)

	return err
}

// CountDownlinksInWindow counts downlinks sent by one gateway with
// event_time in [start, end)
func (s *PostgresStore) CountDownlinksInWindow(ctx context.Context, gatewayID string, start, end time.Time) (int, error) {
	var count int
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM downlinks WHERE gateway_id = $1 AND event_time >= $2 AND event_time < $3",
		gatewayID, start, end,
	).Scan(&count)
	return count, err
}

// CreateGatewayStatus stores one periodic gateway status report
func (s *PostgresStore) CreateGatewayStatus(ctx context.Context, st *models.GatewayStatusSnapshot) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	query := `
        INSERT INTO gateway_status (
            id, gateway_id, gateway_eui, time, boot_time, ip,
            gateway_server, fpga, hal,
            latitude, longitude, altitude, source,
            txin, txok, lpps, rxin, rxok, rxfw, ackr,
            event_time
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		st.ID, st.GatewayID, st.GatewayEUI, st.Time, st.BootTime, st.IP,
		st.Versions.GatewayServer, st.Versions.FPGA, st.Versions.HAL,
		st.Location.Latitude, st.Location.Longitude, st.Location.Altitude, st.Location.Source,
		st.Metrics.TXIn, st.Metrics.TXOK, st.Metrics.LPPS,
		st.Metrics.RXIn, st.Metrics.RXOK, st.Metrics.RXFW, st.Metrics.ACKR,
		st.EventTime,
	)

	return err
}

// CreateConnectionStatus stores one connection-lifecycle snapshot
func (s *PostgresStore) CreateConnectionStatus(ctx context.Context, cs *models.GatewayConnectionStatus) error {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}

	query := `
        INSERT INTO gateway_connection_status (
            id, gateway_id, gateway_eui, protocol, connected_at,
            last_status_received_at, last_status_time,
            last_uplink_received_at, last_downlink_received_at,
            boot_time, ip,
            gateway_server, fpga, hal,
            latitude, longitude, altitude, source,
            txin, txok, lpps, rxin, rxok, rxfw, ackr,
            uplink_count, downlink_count,
            rtt_min, rtt_max, rtt_median, rtt_count,
            sub_bands, event_time
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		cs.ID, cs.GatewayID, cs.GatewayEUI, cs.Protocol, cs.ConnectedAt,
		cs.LastStatusReceivedAt, cs.LastStatusTime,
		cs.LastUplinkReceivedAt, cs.LastDownlinkReceivedAt,
		cs.BootTime, cs.IP,
		cs.Versions.GatewayServer, cs.Versions.FPGA, cs.Versions.HAL,
		cs.Location.Latitude, cs.Location.Longitude, cs.Location.Altitude, cs.Location.Source,
		cs.Metrics.TXIn, cs.Metrics.TXOK, cs.Metrics.LPPS,
		cs.Metrics.RXIn, cs.Metrics.RXOK, cs.Metrics.RXFW, cs.Metrics.ACKR,
		cs.UplinkCount, cs.DownlinkCount,
		cs.RTTMin, cs.RTTMax, cs.RTTMedian, cs.RTTCount,
		cs.SubBands, cs.EventTime,
	)

	return err
}

// ListConnectionStatusInWindow lists connection snapshots for one gateway
// with event_time in [start, end), ordered by event time
func (s *PostgresStore) ListConnectionStatusInWindow(ctx context.Context, gatewayID string, start, end time.Time) ([]*models.GatewayConnectionStatus, error) {
	query := `
        SELECT id, gateway_id, gateway_eui, protocol, connected_at, event_time
        FROM gateway_connection_status
        WHERE gateway_id = $1 AND event_time >= $2 AND event_time < $3
        ORDER BY event_time ASC`

	rows, err := s.getDB().QueryContext(ctx, query, gatewayID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []*models.GatewayConnectionStatus
	for rows.Next() {
		cs := &models.GatewayConnectionStatus{}
		err := rows.Scan(&cs.ID, &cs.GatewayID, &cs.GatewayEUI, &cs.Protocol, &cs.ConnectedAt, &cs.EventTime)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, cs)
	}

	return statuses, rows.Err()
}
