package models

import (
	"time"

	"github.com/google/uuid"
)

// PacketLossStats holds the loss accounting for one device over one window,
// computed either per-gateway or across all gateways.
type PacketLossStats struct {
	TotalLoss     int     `json:"totalLoss"`
	TotalLossRatio float64 `json:"totalLossRatio"`
	MissingCount  int     `json:"missingCount"`
	MissingRatio  float64 `json:"missingRatio"`

	Replica1Count int     `json:"replica1Count"`
	Replica2Count int     `json:"replica2Count"`
	Replica3Count int     `json:"replica3Count"`
	Replica1Ratio float64 `json:"replica1Ratio"`
	Replica2Ratio float64 `json:"replica2Ratio"`
	Replica3Ratio float64 `json:"replica3Ratio"`
}

// EndDeviceKPI is one row of per-device KPIs for one aggregation window at
// one gateway. Immutable once written; (device, gateway, window) is the
// natural key.
type EndDeviceKPI struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DeviceID    string    `json:"deviceId" db:"device_id"`
	GatewayID   string    `json:"gatewayId" db:"gateway_id"`
	WindowStart time.Time `json:"windowStart" db:"window_start"`
	WindowEnd   time.Time `json:"windowEnd" db:"window_end"`

	SamplingRate *int `json:"samplingRate,omitempty" db:"sampling_rate"`

	TotalUplinks        int `json:"totalUplinks" db:"total_uplinks"`
	TotalUniqueUplinks  int `json:"totalUniqueUplinks" db:"total_unique_uplinks"`
	TotalDownlinks      int `json:"totalDownlinks" db:"total_downlinks"`

	// Cross-gateway loss accounting
	Loss PacketLossStats `json:"loss"`
	// Loss accounting restricted to this gateway
	GatewayLoss PacketLossStats `json:"gatewayLoss"`

	ConsumedDutyCycle float64 `json:"consumedDutyCycle" db:"consumed_duty_cycle"`

	SNRMean             float64 `json:"snrMean" db:"snr_mean"`
	SNRVariance         float64 `json:"snrVariance" db:"snr_variance"`
	RSSIMean            float64 `json:"rssiMean" db:"rssi_mean"`
	RSSIVariance        float64 `json:"rssiVariance" db:"rssi_variance"`
	PayloadSizeMean     float64 `json:"payloadSizeMean" db:"payload_size_mean"`
	PayloadSizeVariance float64 `json:"payloadSizeVariance" db:"payload_size_variance"`
	AirtimeMean         float64 `json:"airtimeMean" db:"airtime_mean"`
	AirtimeVariance     float64 `json:"airtimeVariance" db:"airtime_variance"`

	SpreadingFactorDistribution IntMap   `json:"spreadingFactorDistribution" db:"sf_distribution"`
	SpreadingFactorRatios       FloatMap `json:"spreadingFactorRatios" db:"sf_ratios"`
	FrequencyDistribution       IntMap   `json:"frequencyDistribution" db:"frequency_distribution"`
	FrequencyRatios             FloatMap `json:"frequencyRatios" db:"frequency_ratios"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// GatewayKPI is one row of per-gateway KPIs for one aggregation window.
// Device-derived fields aggregate only the devices that produced a row.
type GatewayKPI struct {
	ID          uuid.UUID `json:"id" db:"id"`
	GatewayID   string    `json:"gatewayId" db:"gateway_id"`
	WindowStart time.Time `json:"windowStart" db:"window_start"`
	WindowEnd   time.Time `json:"windowEnd" db:"window_end"`

	// Gateway-only metrics
	TotalUplinks            int      `json:"totalUplinks" db:"total_uplinks"`
	ConnectedNodes          int      `json:"connectedNodes" db:"connected_nodes"`
	IdentifiedNodes         int      `json:"identifiedNodes" db:"identified_nodes"`
	UnidentifiedNodes       int      `json:"unidentifiedNodes" db:"unidentified_nodes"`
	TotalConsumedAirtime    float64  `json:"totalConsumedAirtime" db:"total_consumed_airtime"`
	AirtimeUtilization      float64  `json:"airtimeUtilization" db:"airtime_utilization"`
	JitterMean              float64  `json:"jitterMean" db:"jitter_mean"`
	JitterStdDev            float64  `json:"jitterStdDev" db:"jitter_std_dev"`
	Availability            float64  `json:"availability" db:"availability"`

	// Rollup of the device KPIs computed this window
	DeviceCount        int      `json:"deviceCount" db:"device_count"`
	AvgSamplingRate    *float64 `json:"avgSamplingRate,omitempty" db:"avg_sampling_rate"`
	TotalDeviceUplinks int      `json:"totalDeviceUplinks" db:"total_device_uplinks"`
	TotalUniqueUplinks int      `json:"totalUniqueUplinks" db:"total_unique_uplinks"`
	TotalDownlinks     int      `json:"totalDownlinks" db:"total_downlinks"`

	Loss PacketLossStats `json:"loss"`

	SNRMean             float64 `json:"snrMean" db:"snr_mean"`
	SNRVariance         float64 `json:"snrVariance" db:"snr_variance"`
	RSSIMean            float64 `json:"rssiMean" db:"rssi_mean"`
	RSSIVariance        float64 `json:"rssiVariance" db:"rssi_variance"`
	PayloadSizeMean     float64 `json:"payloadSizeMean" db:"payload_size_mean"`
	PayloadSizeVariance float64 `json:"payloadSizeVariance" db:"payload_size_variance"`
	AirtimeMean         float64 `json:"airtimeMean" db:"airtime_mean"`
	AirtimeVariance     float64 `json:"airtimeVariance" db:"airtime_variance"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// AggregationCheckpoint is the persisted watermark: the boundary up to which
// all windows have been fully aggregated. Restart resumes from here instead
// of reprocessing history.
type AggregationCheckpoint struct {
	Name      string    `json:"name" db:"name"`
	Watermark time.Time `json:"watermark" db:"watermark"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
