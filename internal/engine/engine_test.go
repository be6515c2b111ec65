package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/internal/bookings"
	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/internal/payments"
	"github.com/angelmondragon/evcharge-backend/internal/search"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

type recordingListener struct {
	mu      sync.Mutex
	changes []availability.StatusChange
}

func (r *recordingListener) ChargerStatusChanged(_ context.Context, change availability.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func testConfig() *config.Config {
	return &config.Config{
		Guard: config.GuardConfig{AcquireTimeout: 2 * time.Second, CASRetries: 3},
		Booking: config.BookingPolicyConfig{
			FullRefundLeadTime:      time.Hour,
			LateCancelRefundPercent: 50,
			NoRefundAfterOccupied:   45 * time.Minute,
			NoShowGrace:             15 * time.Minute,
			NoShowPenaltyPercent:    100,
			ImmediateStartGrace:     15 * time.Minute,
			EarlyStartTolerance:     10 * time.Minute,
			MinWindow:               15 * time.Minute,
			MaxWindow:               8 * time.Hour,
			MaxAdvance:              720 * time.Hour,
			EstimateMinutes:         60,
			SweepBatchSize:          100,
		},
		Search:        config.SearchConfig{FallbackEnabled: true, LiveTimeout: time.Second, GridCellDegrees: geoindex.DefaultCellDegrees},
		Notifications: config.NotificationsConfig{Channels: []string{"push", "email"}},
	}
}

func TestEngineWiresRegistrySearchAndBookings(t *testing.T) {
	conn := dbtest.NewSQLite(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	listener := &recordingListener{}
	eng, err := New(context.Background(), Params{
		Config:   testConfig(),
		DB:       db.Wrap(conn),
		Logger:   logger.New(logger.Options{ServiceName: "engine-test", Output: io.Discard}),
		Listener: listener,
		Payments: payments.NewSandboxGateway(),
	})
	require.NoError(t, err)

	operator := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleOperator}
	driver := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleDriver}
	ctx := context.Background()

	station, err := eng.Stations.Create(ctx, operator, stations.CreateStationInput{
		Name:     "HSR Layout Supercharge",
		Address:  &types.Address{Line1: "27th Main Road", City: "Bengaluru", State: "Karnataka", PostalCode: "560102", Country: "IN"},
		Location: &types.GeographyPoint{Lat: 12.9116, Lng: 77.6474},
		Chargers: []stations.ChargerInput{{
			ConnectorType: enums.ConnectorCCS,
			PowerKW:       60,
			Pricing: types.ChargerPricing{
				PerKWh:     decimal.NewFromInt(18),
				PerMinute:  decimal.Zero,
				SessionFee: decimal.NewFromInt(20),
				Currency:   enums.CurrencyINR,
			},
		}},
		Amenities: []enums.Amenity{enums.AmenityCafe},
	})
	require.NoError(t, err)
	require.Len(t, station.Chargers, 1)

	res, err := eng.Search.Search(ctx, search.Criteria{
		Center:   &geoindex.Point{Lat: 12.9121, Lng: 77.6470},
		RadiusKm: 2,
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Stations, 1)
	assert.Equal(t, station.ID, res.Stations[0].ID)

	booking, err := eng.Bookings.Create(ctx, driver, bookings.CreateInput{
		StationID:     station.ID,
		ChargerID:     station.Chargers[0].ID,
		Type:          enums.BookingTypeImmediate,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentToken:  "tok_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusBooked, booking.Status)

	count, err := eng.Stations.AvailableChargerCount(ctx, station.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	inbox, err := eng.Inbox.List(ctx, driver, notifications.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, inbox.Items)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.NotEmpty(t, listener.changes)
	last := listener.changes[len(listener.changes)-1]
	assert.Equal(t, station.ID, last.StationID)
	assert.Equal(t, enums.ChargerStatusOccupied, last.Status)
}

func TestEngineRequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Params{})
	require.Error(t, err)

	_, err = New(context.Background(), Params{Config: testConfig()})
	require.Error(t, err)
}
