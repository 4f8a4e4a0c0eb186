package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Uplink methods
	CreateUplink(ctx context.Context, up *models.UplinkRecord) error
	UplinkExists(ctx context.Context, devAddr, gatewayID string, receivedAtGW time.Time) (bool, error)
	ListUplinksInWindow(ctx context.Context, gatewayID string, start, end time.Time) ([]*models.UplinkRecord, error)
	MinUplinkArrival(ctx context.Context) (*time.Time, error)
	MaxUplinkArrival(ctx context.Context) (*time.Time, error)

	// Downlink methods
	CreateDownlink(ctx context.Context, dl *models.DownlinkRecord) error
	CountDownlinksInWindow(ctx context.Context, gatewayID string, start, end time.Time) (int, error)

	// Gateway status methods
	CreateGatewayStatus(ctx context.Context, st *models.GatewayStatusSnapshot) error
	CreateConnectionStatus(ctx context.Context, cs *models.GatewayConnectionStatus) error
	ListConnectionStatusInWindow(ctx context.Context, gatewayID string, start, end time.Time) ([]*models.GatewayConnectionStatus, error)

	// Replica counter methods
	AcquireReplicaCounter(ctx context.Context, devAddr string, fCnt int) error
	CountUplinkReplicas(ctx context.Context, devAddr string, fCnt int) (map[string]int, error)
	UpdateReplicaCounter(ctx context.Context, rc *models.ReplicaCounter) error

	// Device-wide window queries for aggregation
	ListDeviceFrameCounters(ctx context.Context, deviceID string, start, end time.Time) ([]int, error)
	ListDeviceFrameArrivals(ctx context.Context, deviceID string, start, end time.Time) ([]*models.FrameArrival, error)

	// Device relation methods
	ListRelations(ctx context.Context, devAddr, gatewayID string) ([]*models.DeviceGatewayRelation, error)
	UpsertRelation(ctx context.Context, rel *models.DeviceGatewayRelation) error

	// KPI methods
	UpsertEndDeviceKPI(ctx context.Context, kpi *models.EndDeviceKPI) error
	UpsertGatewayKPI(ctx context.Context, kpi *models.GatewayKPI) error
	ListEndDeviceKPIs(ctx context.Context, filters KPIFilters, limit, offset int) ([]*models.EndDeviceKPI, int64, error)
	ListGatewayKPIs(ctx context.Context, filters KPIFilters, limit, offset int) ([]*models.GatewayKPI, int64, error)

	// Aggregation checkpoint methods
	GetCheckpoint(ctx context.Context, name string) (*models.AggregationCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *models.AggregationCheckpoint) error

	// Monitored gateway methods
	AddMonitoredGateway(ctx context.Context, gatewayID string) error
	RemoveMonitoredGateway(ctx context.Context, gatewayID string) error
	ListMonitoredGateways(ctx context.Context) ([]*models.MonitoredGateway, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserLastLogin(ctx context.Context, username string, at time.Time) error

	// Close the store
	Close() error
}

// KPIFilters represents filters for KPI queries
type KPIFilters struct {
	GatewayID *string
	DeviceID  *string
	StartTime *time.Time
	EndTime   *time.Time
}
