package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// Outcome is the non-error result of a reservation attempt.
type Outcome string

const (
	OutcomeReserved        Outcome = "reserved"
	OutcomeAlreadyOccupied Outcome = "already_occupied"
	OutcomeNotOperational  Outcome = "not_operational"
)

// errSkipWrite aborts a charger mutation without treating it as a failure.
var errSkipWrite = errors.New("skip write")

type chargerStore interface {
	MutateCharger(ctx context.Context, stationID uuid.UUID, chargerID string, fn stations.ChargerMutation) (*models.Station, error)
}

// StatusChange is published after a charger status write commits.
type StatusChange struct {
	StationID      uuid.UUID           `json:"station_id"`
	ChargerID      string              `json:"charger_id"`
	Status         enums.ChargerStatus `json:"status"`
	BookingID      string              `json:"booking_id,omitempty"`
	AvailableCount int                 `json:"available_charger_count"`
	At             time.Time           `json:"at"`
}

// StatusListener receives committed charger status changes.
type StatusListener interface {
	ChargerStatusChanged(ctx context.Context, change StatusChange)
}

// ReleaseInput describes the session being closed on a charger.
type ReleaseInput struct {
	BookingID    string
	EnergyKWh    decimal.Decimal
	CountSession bool
}

// Guard serializes every status change of a charger. In-process callers
// queue on a per-charger semaphore; other processes are fenced by the
// station version compare-and-set.
type Guard struct {
	store    chargerStore
	listener StatusListener
	metrics  *metrics.EngineMetrics
	logg     *logger.Logger
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewGuard(store chargerStore, cfg config.GuardConfig, listener StatusListener, m *metrics.EngineMetrics, logg *logger.Logger) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("charger store required")
	}
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Guard{
		store:    store,
		listener: listener,
		metrics:  m,
		logg:     logg,
		timeout:  timeout,
		now:      time.Now,
		locks:    map[string]chan struct{}{},
	}, nil
}

// TryReserve marks the charger occupied for bookingID when it is available.
// Reserving a charger the same booking already holds reports OutcomeReserved.
func (g *Guard) TryReserve(ctx context.Context, stationID uuid.UUID, chargerID, bookingID string) (Outcome, error) {
	if bookingID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		g.metrics.IncReservation("timeout")
		return "", err
	}
	defer release()

	outcome := OutcomeReserved
	at := g.now().UTC()
	station, err := g.store.MutateCharger(ctx, stationID, chargerID, func(st *models.Station, c *types.Charger) error {
		switch c.Status {
		case enums.ChargerStatusAvailable:
		case enums.ChargerStatusOccupied:
			if c.CurrentSession == nil || c.CurrentSession.BookingID != bookingID {
				outcome = OutcomeAlreadyOccupied
			}
			return errSkipWrite
		default:
			outcome = OutcomeNotOperational
			return errSkipWrite
		}
		c.Status = enums.ChargerStatusOccupied
		c.CurrentSession = &types.ChargerSession{BookingID: bookingID, StartedAt: at, EnergyKWh: decimal.Zero}
		return nil
	})
	if errors.Is(err, errSkipWrite) {
		g.metrics.IncReservation(string(outcome))
		return outcome, nil
	}
	if err != nil {
		g.metrics.IncReservation("error")
		return "", mapStoreError(err)
	}

	g.metrics.IncReservation(string(outcome))
	g.publish(ctx, station, chargerID, bookingID, at)
	if g.logg != nil {
		logCtx := g.logg.WithChargerID(g.logg.WithBookingID(ctx, bookingID), stationID.String(), chargerID)
		g.logg.Info(logCtx, "charger reserved")
	}
	return outcome, nil
}

// Release frees the charger if it is held by in.BookingID and folds the
// session into the charger and station counters. It reports false when the
// charger was not held by that booking.
func (g *Guard) Release(ctx context.Context, stationID uuid.UUID, chargerID string, in ReleaseInput) (bool, error) {
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		return false, err
	}
	defer release()

	energy := in.EnergyKWh
	if energy.IsNegative() {
		energy = decimal.Zero
	}
	at := g.now().UTC()
	station, err := g.store.MutateCharger(ctx, stationID, chargerID, func(st *models.Station, c *types.Charger) error {
		if c.Status != enums.ChargerStatusOccupied || c.CurrentSession == nil || c.CurrentSession.BookingID != in.BookingID {
			return errSkipWrite
		}
		c.Status = enums.ChargerStatusAvailable
		c.CurrentSession = nil
		if in.CountSession {
			c.TotalSessions++
			c.TotalEnergyKWh = c.TotalEnergyKWh.Add(energy)
			st.TotalSessions++
			st.TotalEnergyKWh = st.TotalEnergyKWh.Add(energy)
		}
		return nil
	})
	if errors.Is(err, errSkipWrite) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}

	g.publish(ctx, station, chargerID, "", at)
	if g.logg != nil {
		logCtx := g.logg.WithChargerID(g.logg.WithBookingID(ctx, in.BookingID), stationID.String(), chargerID)
		g.logg.Info(logCtx, "charger released")
	}
	return true, nil
}

// Reinstate undoes a Release whose booking update never committed. The
// charger is held for session.BookingID again with the previous session, and
// counted, when set, is taken back off the totals. It reports false without
// writing when the charger is no longer available.
func (g *Guard) Reinstate(ctx context.Context, stationID uuid.UUID, chargerID string, session types.ChargerSession, counted *decimal.Decimal) (bool, error) {
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		return false, err
	}
	defer release()

	at := g.now().UTC()
	station, err := g.store.MutateCharger(ctx, stationID, chargerID, func(st *models.Station, c *types.Charger) error {
		if c.Status != enums.ChargerStatusAvailable {
			return errSkipWrite
		}
		held := session
		c.Status = enums.ChargerStatusOccupied
		c.CurrentSession = &held
		if counted != nil {
			energy := decimal.Max(*counted, decimal.Zero)
			c.TotalSessions--
			c.TotalEnergyKWh = c.TotalEnergyKWh.Sub(energy)
			st.TotalSessions--
			st.TotalEnergyKWh = st.TotalEnergyKWh.Sub(energy)
		}
		return nil
	})
	if errors.Is(err, errSkipWrite) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}

	g.publish(ctx, station, chargerID, session.BookingID, at)
	if g.logg != nil {
		logCtx := g.logg.WithChargerID(g.logg.WithBookingID(ctx, session.BookingID), stationID.String(), chargerID)
		g.logg.Warn(logCtx, "charger reinstated after booking update failed")
	}
	return true, nil
}

// RecordEnergy updates the running energy counter of the session bookingID holds.
func (g *Guard) RecordEnergy(ctx context.Context, stationID uuid.UUID, chargerID, bookingID string, energyKWh decimal.Decimal) error {
	if energyKWh.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "energy must not be negative")
	}
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		return err
	}
	defer release()

	_, err = g.store.MutateCharger(ctx, stationID, chargerID, func(_ *models.Station, c *types.Charger) error {
		if c.CurrentSession == nil || c.CurrentSession.BookingID != bookingID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "charger is not held by this booking")
		}
		if energyKWh.LessThan(c.CurrentSession.EnergyKWh) {
			return pkgerrors.New(pkgerrors.CodeValidation, "energy counter cannot decrease")
		}
		c.CurrentSession.EnergyKWh = energyKWh
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}
	return nil
}

// SetOperationalStatus moves a charger between available, out_of_order and
// maintenance. Occupied chargers are refused.
func (g *Guard) SetOperationalStatus(ctx context.Context, stationID uuid.UUID, chargerID string, status enums.ChargerStatus) error {
	if !status.IsOperatorSettable() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "status %q cannot be set by an operator", status)
	}
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		return err
	}
	defer release()

	at := g.now().UTC()
	station, err := g.store.MutateCharger(ctx, stationID, chargerID, func(_ *models.Station, c *types.Charger) error {
		if c.Status == enums.ChargerStatusOccupied {
			return pkgerrors.New(pkgerrors.CodeConflict, "charger is occupied")
		}
		if c.Status == status {
			return errSkipWrite
		}
		c.Status = status
		return nil
	})
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return mapStoreError(err)
	}
	g.publish(ctx, station, chargerID, "", at)
	if g.logg != nil {
		g.logg.Info(g.logg.WithChargerID(ctx, stationID.String(), chargerID), fmt.Sprintf("charger status set to %s", status))
	}
	return nil
}

// WithChargerLock runs fn inside the charger's critical section.
func (g *Guard) WithChargerLock(ctx context.Context, stationID uuid.UUID, chargerID string, fn func(ctx context.Context) error) error {
	release, err := g.acquire(ctx, stationID, chargerID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (g *Guard) acquire(ctx context.Context, stationID uuid.UUID, chargerID string) (func(), error) {
	key := stationID.String() + "/" + chargerID
	g.mu.Lock()
	sem, ok := g.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		g.locks[key] = sem
	}
	g.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		g.metrics.ObserveGuardWait(time.Since(start))
		return func() { <-sem }, nil
	case <-timer.C:
		g.metrics.ObserveGuardWait(time.Since(start))
		return nil, pkgerrors.New(pkgerrors.CodeChargerUnavailable, "charger is busy; retry shortly").
			WithDetails(map[string]any{"station_id": stationID, "charger_id": chargerID})
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, ctx.Err(), "charger lock wait cancelled")
	}
}

func (g *Guard) publish(ctx context.Context, station *models.Station, chargerID, bookingID string, at time.Time) {
	if g.listener == nil || station == nil {
		return
	}
	idx := station.Chargers.Find(chargerID)
	if idx < 0 {
		return
	}
	g.listener.ChargerStatusChanged(ctx, StatusChange{
		StationID:      station.ID,
		ChargerID:      chargerID,
		Status:         station.Chargers[idx].Status,
		BookingID:      bookingID,
		AvailableCount: station.AvailableChargerCount(),
		At:             at,
	})
}

func mapStoreError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "station not found")
	case errors.Is(err, stations.ErrChargerNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "charger not found")
	case errors.Is(err, stations.ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeChargerUnavailable, err, "charger is under heavy contention; retry shortly")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "update charger")
	}
}
