package scheduler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/pkg/freqplan"
)

// computeDeviceKPI aggregates one device over one window at one gateway.
// uplinks are the device's receptions at that gateway; the cross-gateway
// numbers come from dedicated frame queries so replicas heard elsewhere
// still count.
func (s *Scheduler) computeDeviceKPI(ctx context.Context, deviceID, gatewayID string, start, end time.Time, uplinks []*models.UplinkRecord) (*models.EndDeviceKPI, error) {
	arrivals, err := s.store.ListDeviceFrameArrivals(ctx, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("frame arrivals: %w", err)
	}
	counters, err := s.store.ListDeviceFrameCounters(ctx, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("frame counters: %w", err)
	}

	kpi := &models.EndDeviceKPI{
		ID:          uuid.New(),
		DeviceID:    deviceID,
		GatewayID:   gatewayID,
		WindowStart: start,
		WindowEnd:   end,

		SamplingRate:       samplingRate(arrivals),
		TotalUplinks:       len(uplinks),
		TotalUniqueUplinks: countDistinctFrames(uplinks),

		Loss:        packetLoss(counters, s.cfg.NumTxReplica),
		GatewayLoss: packetLoss(frameCounters(uplinks), s.cfg.NumTxReplica),

		ConsumedDutyCycle: consumedDutyCycle(arrivals, s.cfg.NumTxReplica),

		CreatedAt: s.clock.Now(),
	}
	fillSignalStats(kpi, uplinks)
	fillDistributions(kpi, uplinks)
	return kpi, nil
}

// samplingRate estimates the device's transmit period in whole seconds: the
// floored mean gap between the first arrivals of consecutive frame counters.
// Pairs with a counter missing in between are excluded, so packet loss does
// not inflate the estimate. Nil when no consecutive pair exists.
func samplingRate(arrivals []*models.FrameArrival) *int {
	var total float64
	var n int
	for i := 1; i < len(arrivals); i++ {
		if arrivals[i].FCnt-arrivals[i-1].FCnt != 1 {
			continue
		}
		total += arrivals[i].FirstReceivedAt.Sub(arrivals[i-1].FirstReceivedAt).Seconds()
		n++
	}
	if n == 0 {
		return nil
	}
	rate := int(math.Floor(total / float64(n)))
	return &rate
}

// packetLoss derives loss accounting from a multiset of frame counters. Each
// counter is expected numReplica times; shortfalls on observed counters plus
// whole counters missing from the inclusive observed range count as lost.
func packetLoss(counters []int, numReplica int) models.PacketLossStats {
	var stats models.PacketLossStats
	if len(counters) == 0 {
		return stats
	}

	counts := make(map[int]int)
	lo, hi := counters[0], counters[0]
	for _, c := range counters {
		counts[c]++
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}

	for _, n := range counts {
		if n < numReplica {
			stats.TotalLoss += numReplica - n
		}
		switch n {
		case 1:
			stats.Replica1Count++
		case 2:
			stats.Replica2Count++
		default:
			stats.Replica3Count++
		}
	}
	stats.MissingCount = (hi - lo + 1) - len(counts)
	stats.TotalLoss += stats.MissingCount * numReplica

	observed := float64(len(counts))
	stats.Replica1Ratio = float64(stats.Replica1Count) / observed
	stats.Replica2Ratio = float64(stats.Replica2Count) / observed
	stats.Replica3Ratio = float64(stats.Replica3Count) / observed

	span := float64(hi - lo + 1)
	stats.TotalLossRatio = float64(stats.TotalLoss) / (span * float64(numReplica))
	stats.MissingRatio = float64(stats.MissingCount) / span
	return stats
}

// consumedDutyCycle sums the airtime the device spent transmitting: the
// cheapest observed reception per frame, multiplied by the replica count
// because every replica is a real transmission even when only one was heard.
func consumedDutyCycle(arrivals []*models.FrameArrival, numReplica int) float64 {
	var total float64
	for _, a := range arrivals {
		total += a.MinAirtime * float64(numReplica)
	}
	return total
}

func fillSignalStats(kpi *models.EndDeviceKPI, uplinks []*models.UplinkRecord) {
	snrs := make([]float64, 0, len(uplinks))
	rssis := make([]float64, 0, len(uplinks))
	sizes := make([]float64, 0, len(uplinks))
	airtimes := make([]float64, 0, len(uplinks))
	for _, u := range uplinks {
		if u.SNR != nil {
			snrs = append(snrs, *u.SNR)
		}
		if u.RSSI != nil {
			rssis = append(rssis, *u.RSSI)
		}
		sizes = append(sizes, float64(u.PayloadSize))
		airtimes = append(airtimes, u.Airtime)
	}
	kpi.SNRMean, kpi.SNRVariance = meanVariance(snrs)
	kpi.RSSIMean, kpi.RSSIVariance = meanVariance(rssis)
	kpi.PayloadSizeMean, kpi.PayloadSizeVariance = meanVariance(sizes)
	kpi.AirtimeMean, kpi.AirtimeVariance = meanVariance(airtimes)
}

// fillDistributions buckets receptions by spreading factor and, when the
// first reception's frequency identifies a channel plan, by channel. Values
// outside the tracked SF range or the plan's channels are ignored.
func fillDistributions(kpi *models.EndDeviceKPI, uplinks []*models.UplinkRecord) {
	sfDist := make(models.IntMap, len(freqplan.SpreadingFactors))
	for _, sf := range freqplan.SpreadingFactors {
		sfDist[strconv.Itoa(sf)] = 0
	}
	sfTotal := 0
	for _, u := range uplinks {
		key := strconv.Itoa(u.SpreadingFactor)
		if _, ok := sfDist[key]; !ok {
			continue
		}
		sfDist[key]++
		sfTotal++
	}
	kpi.SpreadingFactorDistribution = sfDist
	kpi.SpreadingFactorRatios = ratios(sfDist, sfTotal)

	if len(uplinks) == 0 {
		return
	}
	plan := freqplan.Match(uplinks[0].Frequency)
	if plan == nil {
		return
	}
	freqDist := make(models.IntMap, len(plan.Frequencies))
	for _, f := range plan.Frequencies {
		freqDist[strconv.FormatUint(f, 10)] = 0
	}
	freqTotal := 0
	for _, u := range uplinks {
		key := strconv.FormatUint(u.Frequency, 10)
		if _, ok := freqDist[key]; !ok {
			continue
		}
		freqDist[key]++
		freqTotal++
	}
	kpi.FrequencyDistribution = freqDist
	kpi.FrequencyRatios = ratios(freqDist, freqTotal)
}

func ratios(dist models.IntMap, total int) models.FloatMap {
	out := make(models.FloatMap, len(dist))
	for key, n := range dist {
		if total > 0 {
			out[key] = float64(n) / float64(total)
		} else {
			out[key] = 0
		}
	}
	return out
}

func frameCounters(uplinks []*models.UplinkRecord) []int {
	counters := make([]int, 0, len(uplinks))
	for _, u := range uplinks {
		if u.FCnt != nil {
			counters = append(counters, *u.FCnt)
		}
	}
	return counters
}

func countDistinctFrames(uplinks []*models.UplinkRecord) int {
	seen := make(map[int]struct{})
	for _, u := range uplinks {
		if u.FCnt != nil {
			seen[*u.FCnt] = struct{}{}
		}
	}
	return len(seen)
}

// meanVariance returns the arithmetic mean and population variance of vals,
// or zeros when vals is empty.
func meanVariance(vals []float64) (mean, variance float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return mean, variance
}
