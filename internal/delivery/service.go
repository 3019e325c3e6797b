// Package delivery covers the driver side of delivery orders: picking up
// unassigned orders, live location reports, the customer tracking poll and
// driver earnings.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/eta"
	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/matcher"
	"github.com/example/bakery-orders/internal/models"
	"github.com/example/bakery-orders/internal/observability"
	"github.com/example/bakery-orders/internal/storage"
)

type Service struct {
	Store     storage.Store
	Events    events.OrderPublisher
	Locations events.LocationPublisher
	Matcher   *matcher.Service // optional
	ETA       *eta.Estimator   // optional
	// Bakery is where deliveries are picked up.
	Bakery models.Coord
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func requireDriver(actor models.Actor) error {
	if !actor.Is(models.RoleDriver) || actor.ID == "" {
		return fmt.Errorf("%w: drivers only", apperr.ErrForbidden)
	}
	return nil
}

func requireDriverOrAdmin(actor models.Actor) error {
	if actor.Is(models.RoleAdmin) {
		return nil
	}
	return requireDriver(actor)
}

// ListUnassignedDeliverable returns delivery orders waiting for a driver,
// newest first.
func (s *Service) ListUnassignedDeliverable(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	if err := requireDriverOrAdmin(actor); err != nil {
		return nil, err
	}
	return s.Store.ListUnassignedDeliverable(ctx)
}

// Accept assigns the order to the calling driver. Accepting an order the
// driver already holds is a no-op. The status is left alone: the kitchen
// keeps moving it to ready, and the driver advances it from there with
// ready -> picked_up.
func (s *Service) Accept(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	if err := requireDriver(actor); err != nil {
		return nil, err
	}
	return s.assign(ctx, orderID, actor.ID)
}

// Assign lets an admin hand an order to a specific driver under the same
// rules as Accept.
func (s *Service) Assign(ctx context.Context, actor models.Actor, orderID, driverID string) (*models.Order, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins assign drivers", apperr.ErrForbidden)
	}
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver_id is required", apperr.ErrValidation)
	}
	if _, err := s.Store.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}
	return s.assign(ctx, orderID, driverID)
}

func (s *Service) assign(ctx context.Context, orderID, driverID string) (*models.Order, error) {
	var (
		o       *models.Order
		changed bool
	)
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if o.OrderType != models.OrderDelivery {
			return fmt.Errorf("%w: order %s is %s, not delivery", apperr.ErrInvalidTransition, orderID, o.OrderType)
		}
		if o.HasDriver() {
			if o.AssignedDriverID == driverID {
				return nil
			}
			return fmt.Errorf("%w: order %s", apperr.ErrAlreadyAssigned, orderID)
		}
		if !deliverable(o.Status) {
			return fmt.Errorf("%w: order %s is %s", apperr.ErrInvalidTransition, orderID, o.Status)
		}
		now := s.now()
		o.AssignedDriverID = driverID
		o.AssignedAt = &now
		o.UpdatedAt = now
		changed = true
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger().Info("order assigned", "order_id", orderID, "driver_id", driverID)
		if s.Events != nil {
			if err := s.Events.PublishOrder(context.WithoutCancel(ctx), events.NewOrderEvent(events.OrderAssigned, o, o.Status, s.now())); err != nil {
				s.logger().Warn("publish order event failed", "type", events.OrderAssigned, "order_id", orderID, "error", err)
			}
		}
	}
	return o, nil
}

func deliverable(st models.OrderStatus) bool {
	for _, d := range storage.DeliverableStatuses {
		if d == st {
			return true
		}
	}
	return false
}

type LocationReport struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Heading float64  `json:"heading"`
	Speed   float64  `json:"speed"`
}

// ReportLocation replaces the driver's last known position.
func (s *Service) ReportLocation(ctx context.Context, actor models.Actor, r LocationReport) error {
	if err := requireDriver(actor); err != nil {
		return err
	}
	if r.Lat == nil || r.Lng == nil || !models.ValidCoord(*r.Lat, *r.Lng) {
		observability.LocationReports.WithLabelValues("invalid").Inc()
		return apperr.ErrInvalidCoordinates
	}
	loc := models.DriverLocation{
		DriverID:  actor.ID,
		Lat:       *r.Lat,
		Lng:       *r.Lng,
		Heading:   r.Heading,
		Speed:     r.Speed,
		UpdatedAt: s.now(),
	}
	err := s.Store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.UpsertDriverLocation(ctx, loc)
	})
	if err != nil {
		observability.LocationReports.WithLabelValues("error").Inc()
		return err
	}
	observability.LocationReports.WithLabelValues("ok").Inc()
	s.publishLocation(ctx, loc, s.isAvailable(ctx, actor.ID))
	return nil
}

func (s *Service) isAvailable(ctx context.Context, driverID string) bool {
	d, err := s.Store.GetDriver(ctx, driverID)
	return err == nil && d.Available
}

func (s *Service) publishLocation(ctx context.Context, loc models.DriverLocation, available bool) {
	if s.Locations == nil {
		return
	}
	ev := events.LocationEvent{
		DriverID:  loc.DriverID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Heading:   loc.Heading,
		Speed:     loc.Speed,
		Available: available,
		At:        loc.UpdatedAt,
	}
	if err := s.Locations.PublishLocation(context.WithoutCancel(ctx), ev); err != nil {
		s.logger().Warn("publish location failed", "driver_id", loc.DriverID, "error", err)
	}
}

// SetAvailability marks the driver as taking (or not taking) deliveries.
func (s *Service) SetAvailability(ctx context.Context, actor models.Actor, available bool) (*models.Driver, error) {
	if err := requireDriver(actor); err != nil {
		return nil, err
	}
	d, err := s.updateDriver(ctx, actor.ID, func(d *models.Driver) { d.Available = available })
	if err != nil {
		return nil, err
	}
	if list, err := s.Store.ListAvailableDrivers(ctx); err == nil {
		observability.DriversAvailable.Set(float64(len(list)))
	}
	if loc, err := s.Store.GetDriverLocation(ctx, actor.ID); err == nil {
		s.publishLocation(ctx, *loc, available)
	}
	s.logger().Info("driver availability changed", "driver_id", actor.ID, "available", available)
	return d, nil
}

type Profile struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	VehicleNumber string `json:"vehicle_number"`
}

func (s *Service) UpdateProfile(ctx context.Context, actor models.Actor, p Profile) (*models.Driver, error) {
	if err := requireDriver(actor); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	return s.updateDriver(ctx, actor.ID, func(d *models.Driver) {
		d.Name, d.Phone, d.VehicleNumber = p.Name, p.Phone, p.VehicleNumber
	})
}

func (s *Service) updateDriver(ctx context.Context, driverID string, mutate func(*models.Driver)) (*models.Driver, error) {
	d, err := s.Store.GetDriver(ctx, driverID)
	if errors.Is(err, apperr.ErrNotFound) {
		d, err = &models.Driver{ID: driverID}, nil
	}
	if err != nil {
		return nil, err
	}
	mutate(d)
	err = s.Store.WithinTx(ctx, func(tx storage.Tx) error { return tx.UpsertDriver(ctx, d) })
	if err != nil {
		return nil, err
	}
	return d, nil
}

var activeStatuses = []models.OrderStatus{
	models.StatusConfirmed, models.StatusPreparing, models.StatusReady,
	models.StatusPickedUp, models.StatusOnTheWay,
}

// ActiveDelivery returns the driver's most recent unfinished order, or nil.
func (s *Service) ActiveDelivery(ctx context.Context, actor models.Actor) (*models.Order, error) {
	if err := requireDriver(actor); err != nil {
		return nil, err
	}
	list, err := s.Store.ListDriverOrders(ctx, actor.ID, activeStatuses)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

type Earnings struct {
	DriverID   string       `json:"driver_id"`
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
	Total      models.Money `json:"total"`
	Deliveries int          `json:"deliveries"`
}

// ComputeEarnings sums the delivery fees of the driver's finished orders
// completed in [from, to).
func (s *Service) ComputeEarnings(ctx context.Context, actor models.Actor, driverID string, from, to time.Time) (Earnings, error) {
	if !actor.Is(models.RoleAdmin) && !(actor.Is(models.RoleDriver) && actor.ID == driverID) {
		return Earnings{}, fmt.Errorf("%w: earnings of %s", apperr.ErrForbidden, driverID)
	}
	if !from.Before(to) {
		return Earnings{}, fmt.Errorf("%w: from must be before to", apperr.ErrValidation)
	}
	total, n, err := s.Store.DriverEarnings(ctx, driverID, from, to)
	if err != nil {
		return Earnings{}, err
	}
	return Earnings{DriverID: driverID, From: from, To: to, Total: total, Deliveries: n}, nil
}

// SuggestDrivers ranks available drivers near the bakery for an unassigned
// delivery order.
func (s *Service) SuggestDrivers(ctx context.Context, actor models.Actor, orderID string) ([]matcher.Suggestion, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins see driver suggestions", apperr.ErrForbidden)
	}
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.OrderType != models.OrderDelivery {
		return nil, fmt.Errorf("%w: order %s is not a delivery", apperr.ErrValidation, orderID)
	}
	if s.Matcher == nil {
		return []matcher.Suggestion{}, nil
	}
	drivers, err := s.Store.ListAvailableDrivers(ctx)
	if err != nil {
		return nil, err
	}
	avail := make(map[string]bool, len(drivers))
	for _, d := range drivers {
		avail[d.ID] = true
	}
	return s.Matcher.Suggest(ctx, s.Bakery, func(id string) bool { return avail[id] })
}
