package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// computeGatewayKPI aggregates one gateway over one window: its own radio and
// connection metrics plus a rollup of the device rows computed this window.
func (s *Scheduler) computeGatewayKPI(ctx context.Context, gatewayID string, start, end time.Time, uplinks []*models.UplinkRecord, devices []*models.EndDeviceKPI) (*models.GatewayKPI, error) {
	statuses, err := s.store.ListConnectionStatusInWindow(ctx, gatewayID, start, end)
	if err != nil {
		return nil, fmt.Errorf("connection statuses: %w", err)
	}
	downlinks, err := s.store.CountDownlinksInWindow(ctx, gatewayID, start, end)
	if err != nil {
		return nil, fmt.Errorf("count downlinks: %w", err)
	}

	kpi := &models.GatewayKPI{
		ID:          uuid.New(),
		GatewayID:   gatewayID,
		WindowStart: start,
		WindowEnd:   end,

		TotalUplinks:   len(uplinks),
		TotalDownlinks: downlinks,
		Availability:   availability(statuses, start, end),

		CreatedAt: s.clock.Now(),
	}
	kpi.ConnectedNodes, kpi.IdentifiedNodes, kpi.UnidentifiedNodes = countConnectedNodes(uplinks)

	var totalAirtime float64
	for _, u := range uplinks {
		totalAirtime += u.Airtime
	}
	kpi.TotalConsumedAirtime = totalAirtime
	kpi.AirtimeUtilization = (totalAirtime / 1000) / end.Sub(start).Seconds()
	kpi.JitterMean, kpi.JitterStdDev = jitter(uplinks)

	rollupDevices(kpi, devices)
	return kpi, nil
}

// countConnectedNodes counts the distinct transmitters heard in the window.
// A device address with at least one resolved reception belongs to an
// identified device; an address never resolved counts as one unidentified
// node.
func countConnectedNodes(uplinks []*models.UplinkRecord) (connected, identified, unidentified int) {
	devices := make(map[string]struct{})
	addrResolved := make(map[string]bool)
	for _, u := range uplinks {
		if u.DeviceID != nil {
			devices[*u.DeviceID] = struct{}{}
			addrResolved[u.DevAddr] = true
		} else if _, ok := addrResolved[u.DevAddr]; !ok {
			addrResolved[u.DevAddr] = false
		}
	}
	identified = len(devices)
	for _, resolved := range addrResolved {
		if !resolved {
			unidentified++
		}
	}
	return identified + unidentified, identified, unidentified
}

// jitter measures the spread of inter-arrival gaps at the gateway, in
// milliseconds, over all receptions ordered by arrival. Fewer than two
// receptions yield zeros.
func jitter(uplinks []*models.UplinkRecord) (mean, stdDev float64) {
	if len(uplinks) < 2 {
		return 0, 0
	}
	deltas := make([]float64, 0, len(uplinks)-1)
	for i := 1; i < len(uplinks); i++ {
		gap := uplinks[i].ReceivedAtGW.Sub(uplinks[i-1].ReceivedAtGW)
		deltas = append(deltas, gap.Seconds()*1000)
	}
	mean, variance := meanVariance(deltas)
	return mean, math.Sqrt(variance)
}

// availability is the percentage of the window the gateway was connected.
// Downtime is inferred from reconnects: when a snapshot's connection start is
// later than the previous snapshot's event time, the gateway was down for
// that gap. No snapshots means no observed disconnect, so full availability.
func availability(statuses []*models.GatewayConnectionStatus, start, end time.Time) float64 {
	duration := end.Sub(start).Seconds()
	if duration <= 0 {
		return 0
	}
	var downtime float64
	for i := 1; i < len(statuses); i++ {
		if statuses[i].ConnectedAt == nil {
			continue
		}
		gap := statuses[i].ConnectedAt.Sub(statuses[i-1].EventTime).Seconds()
		if gap > 0 {
			downtime += gap
		}
	}
	if downtime > duration {
		downtime = duration
	}
	return (duration - downtime) / duration * 100
}

// rollupDevices folds the window's device rows into the gateway row: counts
// are summed, ratios and means are averaged over the devices that produced
// them. The loss rollup uses each device's per-gateway loss so the numbers
// describe this gateway's reception, not the whole fleet's.
func rollupDevices(kpi *models.GatewayKPI, devices []*models.EndDeviceKPI) {
	kpi.DeviceCount = len(devices)
	if len(devices) == 0 {
		return
	}

	var srTotal float64
	var srCount int
	for _, d := range devices {
		kpi.TotalDeviceUplinks += d.TotalUplinks
		kpi.TotalUniqueUplinks += d.TotalUniqueUplinks

		kpi.Loss.TotalLoss += d.GatewayLoss.TotalLoss
		kpi.Loss.MissingCount += d.GatewayLoss.MissingCount
		kpi.Loss.Replica1Count += d.GatewayLoss.Replica1Count
		kpi.Loss.Replica2Count += d.GatewayLoss.Replica2Count
		kpi.Loss.Replica3Count += d.GatewayLoss.Replica3Count
		kpi.Loss.TotalLossRatio += d.GatewayLoss.TotalLossRatio
		kpi.Loss.MissingRatio += d.GatewayLoss.MissingRatio
		kpi.Loss.Replica1Ratio += d.GatewayLoss.Replica1Ratio
		kpi.Loss.Replica2Ratio += d.GatewayLoss.Replica2Ratio
		kpi.Loss.Replica3Ratio += d.GatewayLoss.Replica3Ratio

		kpi.SNRMean += d.SNRMean
		kpi.SNRVariance += d.SNRVariance
		kpi.RSSIMean += d.RSSIMean
		kpi.RSSIVariance += d.RSSIVariance
		kpi.PayloadSizeMean += d.PayloadSizeMean
		kpi.PayloadSizeVariance += d.PayloadSizeVariance
		kpi.AirtimeMean += d.AirtimeMean
		kpi.AirtimeVariance += d.AirtimeVariance

		if d.SamplingRate != nil {
			srTotal += float64(*d.SamplingRate)
			srCount++
		}
	}

	n := float64(len(devices))
	kpi.Loss.TotalLossRatio /= n
	kpi.Loss.MissingRatio /= n
	kpi.Loss.Replica1Ratio /= n
	kpi.Loss.Replica2Ratio /= n
	kpi.Loss.Replica3Ratio /= n
	kpi.SNRMean /= n
	kpi.SNRVariance /= n
	kpi.RSSIMean /= n
	kpi.RSSIVariance /= n
	kpi.PayloadSizeMean /= n
	kpi.PayloadSizeVariance /= n
	kpi.AirtimeMean /= n
	kpi.AirtimeVariance /= n

	if srCount > 0 {
		avg := srTotal / float64(srCount)
		kpi.AvgSamplingRate = &avg
	}
}
