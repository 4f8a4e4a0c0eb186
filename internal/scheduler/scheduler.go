// Package scheduler drives windowed KPI aggregation over the stored
// telemetry. It keeps a watermark behind the newest arrival and computes one
// immutable KPI row per device and per gateway for every complete window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

// CheckpointName is the persisted watermark key for the aggregation loop.
const CheckpointName = "kpi-scheduler"

// Config holds the aggregation parameters.
type Config struct {
	// WindowSize is the length of one aggregation window.
	WindowSize time.Duration
	// BootstrapInterval is the polling period used while waiting for the
	// first uplink to arrive in an empty database.
	BootstrapInterval time.Duration
	// NumTxReplica is the number of times each device transmits a frame.
	NumTxReplica int
}

// Scheduler computes per-device and per-gateway KPIs window by window.
type Scheduler struct {
	store storage.Store
	clock clockwork.Clock
	log   zerolog.Logger
	cfg   Config

	watermark time.Time
}

// New creates a Scheduler. Zero config fields fall back to defaults.
func New(store storage.Store, cfg Config, clock clockwork.Clock, log zerolog.Logger) *Scheduler {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 15 * time.Minute
	}
	if cfg.BootstrapInterval <= 0 {
		cfg.BootstrapInterval = time.Minute
	}
	if cfg.NumTxReplica <= 0 {
		cfg.NumTxReplica = 3
	}
	return &Scheduler{
		store: store,
		clock: clock,
		cfg:   cfg,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Run positions the watermark and then aggregates complete windows until ctx
// is cancelled. A failed cycle is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.bootstrap(ctx); err != nil {
		return err
	}
	for {
		if err := s.advance(ctx); err != nil {
			s.log.Error().Err(err).Msg("aggregation cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.WindowSize):
		}
	}
}

// bootstrap resumes from the persisted checkpoint when one exists, otherwise
// polls until the first uplink arrives and starts the watermark there.
func (s *Scheduler) bootstrap(ctx context.Context) error {
	cp, err := s.store.GetCheckpoint(ctx, CheckpointName)
	if err == nil {
		s.watermark = cp.Watermark
		s.log.Info().Time("watermark", s.watermark).Msg("resuming from checkpoint")
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	for {
		first, err := s.store.MinUplinkArrival(ctx)
		if err != nil {
			return fmt.Errorf("poll first uplink: %w", err)
		}
		if first != nil {
			s.watermark = *first
			s.log.Info().Time("watermark", s.watermark).Msg("first uplink observed")
			return nil
		}
		s.log.Debug().Msg("waiting for first uplink")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.BootstrapInterval):
		}
	}
}

// advance drains every window that is complete, i.e. lies strictly more than
// one window size behind the newest stored arrival. The checkpoint moves only
// after a window has been fully aggregated, so a crash mid-window reprocesses
// it and the upserts make that harmless.
func (s *Scheduler) advance(ctx context.Context) error {
	for {
		newest, err := s.store.MaxUplinkArrival(ctx)
		if err != nil {
			return fmt.Errorf("read newest arrival: %w", err)
		}
		if newest == nil || newest.Sub(s.watermark) <= s.cfg.WindowSize {
			return nil
		}

		start := s.watermark
		end := start.Add(s.cfg.WindowSize)
		if err := s.aggregateWindow(ctx, start, end); err != nil {
			return fmt.Errorf("window %s: %w", start.Format(time.RFC3339), err)
		}

		s.watermark = end
		cp := &models.AggregationCheckpoint{
			Name:      CheckpointName,
			Watermark: end,
			UpdatedAt: s.clock.Now(),
		}
		if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		s.log.Info().
			Time("windowStart", start).
			Time("windowEnd", end).
			Msg("window aggregated")
	}
}

func (s *Scheduler) aggregateWindow(ctx context.Context, start, end time.Time) error {
	gateways, err := s.store.ListMonitoredGateways(ctx)
	if err != nil {
		return fmt.Errorf("list monitored gateways: %w", err)
	}
	for _, gw := range gateways {
		if err := s.aggregateGateway(ctx, gw.GatewayID, start, end); err != nil {
			return fmt.Errorf("gateway %s: %w", gw.GatewayID, err)
		}
	}
	return nil
}

// aggregateGateway computes one window for one gateway. A device that fails
// to aggregate is logged and skipped so the rest of the fleet still gets its
// rows.
func (s *Scheduler) aggregateGateway(ctx context.Context, gatewayID string, start, end time.Time) error {
	uplinks, err := s.store.ListUplinksInWindow(ctx, gatewayID, start, end)
	if err != nil {
		return fmt.Errorf("list uplinks: %w", err)
	}

	byDevice := groupByDevice(uplinks)
	deviceIDs := make([]string, 0, len(byDevice))
	for id := range byDevice {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	deviceKPIs := make([]*models.EndDeviceKPI, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		kpi, err := s.computeDeviceKPI(ctx, deviceID, gatewayID, start, end, byDevice[deviceID])
		if err != nil {
			s.log.Error().Err(err).
				Str("deviceId", deviceID).
				Str("gatewayId", gatewayID).
				Msg("device aggregation failed")
			continue
		}
		if err := s.store.UpsertEndDeviceKPI(ctx, kpi); err != nil {
			s.log.Error().Err(err).
				Str("deviceId", deviceID).
				Str("gatewayId", gatewayID).
				Msg("device KPI upsert failed")
			continue
		}
		deviceKPIs = append(deviceKPIs, kpi)
	}

	gwKPI, err := s.computeGatewayKPI(ctx, gatewayID, start, end, uplinks, deviceKPIs)
	if err != nil {
		return err
	}
	if err := s.store.UpsertGatewayKPI(ctx, gwKPI); err != nil {
		return fmt.Errorf("gateway KPI upsert: %w", err)
	}
	return nil
}

// groupByDevice buckets receptions by resolved device identity. Receptions
// whose address was never resolved carry no device and are left out; they
// still count in the gateway-level metrics.
func groupByDevice(uplinks []*models.UplinkRecord) map[string][]*models.UplinkRecord {
	byDevice := make(map[string][]*models.UplinkRecord)
	for _, u := range uplinks {
		if u.DeviceID == nil {
			continue
		}
		byDevice[*u.DeviceID] = append(byDevice[*u.DeviceID], u)
	}
	return byDevice
}
