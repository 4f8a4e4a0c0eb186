package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// UpsertEndDeviceKPI writes one device KPI row, replacing any earlier row
// for the same (device, gateway, window). A rerun of a window is idempotent.
func (s *PostgresStore) UpsertEndDeviceKPI(ctx context.Context, kpi *models.EndDeviceKPI) error {
	if kpi.ID == uuid.Nil {
		kpi.ID = uuid.New()
	}
	if kpi.CreatedAt.IsZero() {
		kpi.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO end_device_kpis (
            id, device_id, gateway_id, window_start, window_end,
            sampling_rate, total_uplinks, total_unique_uplinks, total_downlinks,
            total_loss, total_loss_ratio, missing_count, missing_ratio,
            replica1_count, replica2_count, replica3_count,
            replica1_ratio, replica2_ratio, replica3_ratio,
            gw_total_loss, gw_total_loss_ratio, gw_missing_count, gw_missing_ratio,
            gw_replica1_count, gw_replica2_count, gw_replica3_count,
            gw_replica1_ratio, gw_replica2_ratio, gw_replica3_ratio,
            consumed_duty_cycle,
            snr_mean, snr_variance, rssi_mean, rssi_variance,
            payload_size_mean, payload_size_variance, airtime_mean, airtime_variance,
            sf_distribution, sf_ratios, frequency_distribution, frequency_ratios,
            created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33, $34, $35, $36, $37, $38, $39, $40,
            $41, $42, $43
        )
        ON CONFLICT (device_id, gateway_id, window_start) DO UPDATE SET
            window_end = EXCLUDED.window_end,
            sampling_rate = EXCLUDED.sampling_rate,
            total_uplinks = EXCLUDED.total_uplinks,
            total_unique_uplinks = EXCLUDED.total_unique_uplinks,
            total_downlinks = EXCLUDED.total_downlinks,
            total_loss = EXCLUDED.total_loss,
            total_loss_ratio = EXCLUDED.total_loss_ratio,
            missing_count = EXCLUDED.missing_count,
            missing_ratio = EXCLUDED.missing_ratio,
            replica1_count = EXCLUDED.replica1_count,
            replica2_count = EXCLUDED.replica2_count,
            replica3_count = EXCLUDED.replica3_count,
            replica1_ratio = EXCLUDED.replica1_ratio,
            replica2_ratio = EXCLUDED.replica2_ratio,
            replica3_ratio = EXCLUDED.replica3_ratio,
            gw_total_loss = EXCLUDED.gw_total_loss,
            gw_total_loss_ratio = EXCLUDED.gw_total_loss_ratio,
            gw_missing_count = EXCLUDED.gw_missing_count,
            gw_missing_ratio = EXCLUDED.gw_missing_ratio,
            gw_replica1_count = EXCLUDED.gw_replica1_count,
            gw_replica2_count = EXCLUDED.gw_replica2_count,
            gw_replica3_count = EXCLUDED.gw_replica3_count,
            gw_replica1_ratio = EXCLUDED.gw_replica1_ratio,
            gw_replica2_ratio = EXCLUDED.gw_replica2_ratio,
            gw_replica3_ratio = EXCLUDED.gw_replica3_ratio,
            consumed_duty_cycle = EXCLUDED.consumed_duty_cycle,
            snr_mean = EXCLUDED.snr_mean,
            snr_variance = EXCLUDED.snr_variance,
            rssi_mean = EXCLUDED.rssi_mean,
            rssi_variance = EXCLUDED.rssi_variance,
            payload_size_mean = EXCLUDED.payload_size_mean,
            payload_size_variance = EXCLUDED.payload_size_variance,
            airtime_mean = EXCLUDED.airtime_mean,
            airtime_variance = EXCLUDED.airtime_variance,
            sf_distribution = EXCLUDED.sf_distribution,
            sf_ratios = EXCLUDED.sf_ratios,
            frequency_distribution = EXCLUDED.frequency_distribution,
            frequency_ratios = EXCLUDED.frequency_ratios,
            created_at = EXCLUDED.created_at`

	_, err := s.getDB().ExecContext(ctx, query,
		kpi.ID, kpi.DeviceID, kpi.GatewayID, kpi.WindowStart, kpi.WindowEnd,
		kpi.SamplingRate, kpi.TotalUplinks, kpi.TotalUniqueUplinks, kpi.TotalDownlinks,
		kpi.Loss.TotalLoss, kpi.Loss.TotalLossRatio, kpi.Loss.MissingCount, kpi.Loss.MissingRatio,
		kpi.Loss.Replica1Count, kpi.Loss.Replica2Count, kpi.Loss.Replica3Count,
		kpi.Loss.Replica1Ratio, kpi.Loss.Replica2Ratio, kpi.Loss.Replica3Ratio,
		kpi.GatewayLoss.TotalLoss, kpi.GatewayLoss.TotalLossRatio, kpi.GatewayLoss.MissingCount, kpi.GatewayLoss.MissingRatio,
		kpi.GatewayLoss.Replica1Count, kpi.GatewayLoss.Replica2Count, kpi.GatewayLoss.Replica3Count,
		kpi.GatewayLoss.Replica1Ratio, kpi.GatewayLoss.Replica2Ratio, kpi.GatewayLoss.Replica3Ratio,
		kpi.ConsumedDutyCycle,
		kpi.SNRMean, kpi.SNRVariance, kpi.RSSIMean, kpi.RSSIVariance,
		kpi.PayloadSizeMean, kpi.PayloadSizeVariance, kpi.AirtimeMean, kpi.AirtimeVariance,
		kpi.SpreadingFactorDistribution, kpi.SpreadingFactorRatios,
		kpi.FrequencyDistribution, kpi.FrequencyRatios,
		kpi.CreatedAt,
	)

	return err
}

// UpsertGatewayKPI writes one gateway KPI row, replacing any earlier row for
// the same (gateway, window)
func (s *PostgresStore) UpsertGatewayKPI(ctx context.Context, kpi *models.GatewayKPI) error {
	if kpi.ID == uuid.Nil {
		kpi.ID = uuid.New()
	}
	if kpi.CreatedAt.IsZero() {
		kpi.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO gateway_kpis (
            id, gateway_id, window_start, window_end,
            total_uplinks, connected_nodes, identified_nodes, unidentified_nodes,
            total_consumed_airtime, airtime_utilization,
            jitter_mean, jitter_std_dev, availability,
            device_count, avg_sampling_rate, total_device_uplinks,
            total_unique_uplinks, total_downlinks,
            total_loss, total_loss_ratio, missing_count, missing_ratio,
            replica1_count, replica2_count, replica3_count,
            replica1_ratio, replica2_ratio, replica3_ratio,
            snr_mean, snr_variance, rssi_mean, rssi_variance,
            payload_size_mean, payload_size_variance, airtime_mean, airtime_variance,
            created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33, $34, $35, $36, $37
        )
        ON CONFLICT (gateway_id, window_start) DO UPDATE SET
            window_end = EXCLUDED.window_end,
            total_uplinks = EXCLUDED.total_uplinks,
            connected_nodes = EXCLUDED.connected_nodes,
            identified_nodes = EXCLUDED.identified_nodes,
            unidentified_nodes = EXCLUDED.unidentified_nodes,
            total_consumed_airtime = EXCLUDED.total_consumed_airtime,
            airtime_utilization = EXCLUDED.airtime_utilization,
            jitter_mean = EXCLUDED.jitter_mean,
            jitter_std_dev = EXCLUDED.jitter_std_dev,
            availability = EXCLUDED.availability,
            device_count = EXCLUDED.device_count,
            avg_sampling_rate = EXCLUDED.avg_sampling_rate,
            total_device_uplinks = EXCLUDED.total_device_uplinks,
            total_unique_uplinks = EXCLUDED.total_unique_uplinks,
            total_downlinks = EXCLUDED.total_downlinks,
            total_loss = EXCLUDED.total_loss,
            total_loss_ratio = EXCLUDED.total_loss_ratio,
            missing_count = EXCLUDED.missing_count,
            missing_ratio = EXCLUDED.missing_ratio,
            replica1_count = EXCLUDED.replica1_count,
            replica2_count = EXCLUDED.replica2_count,
            replica3_count = EXCLUDED.replica3_count,
            replica1_ratio = EXCLUDED.replica1_ratio,
            replica2_ratio = EXCLUDED.replica2_ratio,
            replica3_ratio = EXCLUDED.replica3_ratio,
            snr_mean = EXCLUDED.snr_mean,
            snr_variance = EXCLUDED.snr_variance,
            rssi_mean = EXCLUDED.rssi_mean,
            rssi_variance = EXCLUDED.rssi_variance,
            payload_size_mean = EXCLUDED.payload_size_mean,
            payload_size_variance = EXCLUDED.payload_size_variance,
            airtime_mean = EXCLUDED.airtime_mean,
            airtime_variance = EXCLUDED.airtime_variance,
            created_at = EXCLUDED.created_at`

	_, err := s.getDB().ExecContext(ctx, query,
		kpi.ID, kpi.GatewayID, kpi.WindowStart, kpi.WindowEnd,
		kpi.TotalUplinks, kpi.ConnectedNodes, kpi.IdentifiedNodes, kpi.UnidentifiedNodes,
		kpi.TotalConsumedAirtime, kpi.AirtimeUtilization,
		kpi.JitterMean, kpi.JitterStdDev, kpi.Availability,
		kpi.DeviceCount, kpi.AvgSamplingRate, kpi.TotalDeviceUplinks,
		kpi.TotalUniqueUplinks, kpi.TotalDownlinks,
		kpi.Loss.TotalLoss, kpi.Loss.TotalLossRatio, kpi.Loss.MissingCount, kpi.Loss.MissingRatio,
		kpi.Loss.Replica1Count, kpi.Loss.Replica2Count, kpi.Loss.Replica3Count,
		kpi.Loss.Replica1Ratio, kpi.Loss.Replica2Ratio, kpi.Loss.Replica3Ratio,
		kpi.SNRMean, kpi.SNRVariance, kpi.RSSIMean, kpi.RSSIVariance,
		kpi.PayloadSizeMean, kpi.PayloadSizeVariance, kpi.AirtimeMean, kpi.AirtimeVariance,
		kpi.CreatedAt,
	)

	return err
}

// kpiFilterClause builds the WHERE clause shared by the KPI list queries
func kpiFilterClause(filters KPIFilters, withDevice bool) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters.GatewayID != nil {
		add("gateway_id = $%d", *filters.GatewayID)
	}
	if withDevice && filters.DeviceID != nil {
		add("device_id = $%d", *filters.DeviceID)
	}
	if filters.StartTime != nil {
		add("window_start >= $%d", *filters.StartTime)
	}
	if filters.EndTime != nil {
		add("window_start < $%d", *filters.EndTime)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListEndDeviceKPIs lists device KPI rows matching the filters, newest
// window first
func (s *PostgresStore) ListEndDeviceKPIs(ctx context.Context, filters KPIFilters, limit, offset int) ([]*models.EndDeviceKPI, int64, error) {
	where, args := kpiFilterClause(filters, true)

	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM end_device_kpis"+where, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, device_id, gateway_id, window_start, window_end,
               sampling_rate, total_uplinks, total_unique_uplinks, total_downlinks,
               total_loss, total_loss_ratio, missing_count, missing_ratio,
               replica1_count, replica2_count, replica3_count,
               replica1_ratio, replica2_ratio, replica3_ratio,
               gw_total_loss, gw_total_loss_ratio, gw_missing_count, gw_missing_ratio,
               gw_replica1_count, gw_replica2_count, gw_replica3_count,
               gw_replica1_ratio, gw_replica2_ratio, gw_replica3_ratio,
               consumed_duty_cycle,
               snr_mean, snr_variance, rssi_mean, rssi_variance,
               payload_size_mean, payload_size_variance, airtime_mean, airtime_variance,
               sf_distribution, sf_ratios, frequency_distribution, frequency_ratios,
               created_at
        FROM end_device_kpis` + where + fmt.Sprintf(`
        ORDER BY window_start DESC
        LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := s.getDB().QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var kpis []*models.EndDeviceKPI
	for rows.Next() {
		kpi := &models.EndDeviceKPI{}
		err := rows.Scan(
			&kpi.ID, &kpi.DeviceID, &kpi.GatewayID, &kpi.WindowStart, &kpi.WindowEnd,
			&kpi.SamplingRate, &kpi.TotalUplinks, &kpi.TotalUniqueUplinks, &kpi.TotalDownlinks,
			&kpi.Loss.TotalLoss, &kpi.Loss.TotalLossRatio, &kpi.Loss.MissingCount, &kpi.Loss.MissingRatio,
			&kpi.Loss.Replica1Count, &kpi.Loss.Replica2Count, &kpi.Loss.Replica3Count,
			&kpi.Loss.Replica1Ratio, &kpi.Loss.Replica2Ratio, &kpi.Loss.Replica3Ratio,
			&kpi.GatewayLoss.TotalLoss, &kpi.GatewayLoss.TotalLossRatio, &kpi.GatewayLoss.MissingCount, &kpi.GatewayLoss.MissingRatio,
			&kpi.GatewayLoss.Replica1Count, &kpi.GatewayLoss.Replica2Count, &kpi.GatewayLoss.Replica3Count,
			&kpi.GatewayLoss.Replica1Ratio, &kpi.GatewayLoss.Replica2Ratio, &kpi.GatewayLoss.Replica3Ratio,
			&kpi.ConsumedDutyCycle,
			&kpi.SNRMean, &kpi.SNRVariance, &kpi.RSSIMean, &kpi.RSSIVariance,
			&kpi.PayloadSizeMean, &kpi.PayloadSizeVariance, &kpi.AirtimeMean, &kpi.AirtimeVariance,
			&kpi.SpreadingFactorDistribution, &kpi.SpreadingFactorRatios,
			&kpi.FrequencyDistribution, &kpi.FrequencyRatios,
			&kpi.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		kpis = append(kpis, kpi)
	}

	return kpis, count, rows.Err()
}

// ListGatewayKPIs lists gateway KPI rows matching the filters, newest window
// first
func (s *PostgresStore) ListGatewayKPIs(ctx context.Context, filters KPIFilters, limit, offset int) ([]*models.GatewayKPI, int64, error) {
	where, args := kpiFilterClause(filters, false)

	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM gateway_kpis"+where, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, gateway_id, window_start, window_end,
               total_uplinks, connected_nodes, identified_nodes, unidentified_nodes,
               total_consumed_airtime, airtime_utilization,
               jitter_mean, jitter_std_dev, availability,
               device_count, avg_sampling_rate, total_device_uplinks,
               total_unique_uplinks, total_downlinks,
               total_loss, total_loss_ratio, missing_count, missing_ratio,
               replica1_count, replica2_count, replica3_count,
               replica1_ratio, replica2_ratio, replica3_ratio,
               snr_mean, snr_variance, rssi_mean, rssi_variance,
               payload_size_mean, payload_size_variance, airtime_mean, airtime_variance,
               created_at
        FROM gateway_kpis` + where + fmt.Sprintf(`
        ORDER BY window_start DESC
        LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := s.getDB().QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var kpis []*models.GatewayKPI
	for rows.Next() {
		kpi := &models.GatewayKPI{}
		err := rows.Scan(
			&kpi.ID, &kpi.GatewayID, &kpi.WindowStart, &kpi.WindowEnd,
			&kpi.TotalUplinks, &kpi.ConnectedNodes, &kpi.IdentifiedNodes, &kpi.UnidentifiedNodes,
			&kpi.TotalConsumedAirtime, &kpi.AirtimeUtilization,
			&kpi.JitterMean, &kpi.JitterStdDev, &kpi.Availability,
			&kpi.DeviceCount, &kpi.AvgSamplingRate, &kpi.TotalDeviceUplinks,
			&kpi.TotalUniqueUplinks, &kpi.TotalDownlinks,
			&kpi.Loss.TotalLoss, &kpi.Loss.TotalLossRatio, &kpi.Loss.MissingCount, &kpi.Loss.MissingRatio,
			&kpi.Loss.Replica1Count, &kpi.Loss.Replica2Count, &kpi.Loss.Replica3Count,
			&kpi.Loss.Replica1Ratio, &kpi.Loss.Replica2Ratio, &kpi.Loss.Replica3Ratio,
			&kpi.SNRMean, &kpi.SNRVariance, &kpi.RSSIMean, &kpi.RSSIVariance,
			&kpi.PayloadSizeMean, &kpi.PayloadSizeVariance, &kpi.AirtimeMean, &kpi.AirtimeVariance,
			&kpi.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		kpis = append(kpis, kpi)
	}

	return kpis, count, rows.Err()
}
