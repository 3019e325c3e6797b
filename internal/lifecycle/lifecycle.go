// Package lifecycle is the order state machine. It is pure: it validates a
// requested status change against the transition table and the caller's role,
// then mutates the in-memory order. Persistence and side effects live in the
// services that call it.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

type typeRule int

const (
	anyType typeRule = iota
	deliveryOnly
	counterOnly
)

type edge struct {
	from, to models.OrderStatus
}

type rule struct {
	roles []models.Role
	// driver role must also be the assigned driver
	assignedDriver bool
	types          typeRule
}

var staff = []models.Role{models.RoleAdmin, models.RoleKitchen}

var table = map[edge]rule{
	{models.StatusPending, models.StatusConfirmed}:    {roles: []models.Role{models.RoleAdmin, models.RoleKitchen, models.RoleSystem}},
	{models.StatusConfirmed, models.StatusPreparing}:  {roles: staff},
	{models.StatusPreparing, models.StatusReady}:      {roles: staff},
	{models.StatusReady, models.StatusServed}:         {roles: staff, types: counterOnly},
	{models.StatusServed, models.StatusCompleted}:     {roles: staff, types: counterOnly},
	{models.StatusReady, models.StatusPickedUp}:       {roles: []models.Role{models.RoleAdmin, models.RoleDriver}, assignedDriver: true, types: deliveryOnly},
	{models.StatusPickedUp, models.StatusOnTheWay}:    {roles: []models.Role{models.RoleAdmin, models.RoleDriver}, assignedDriver: true, types: deliveryOnly},
	{models.StatusOnTheWay, models.StatusDelivered}:   {roles: []models.Role{models.RoleAdmin, models.RoleDriver}, assignedDriver: true, types: deliveryOnly},
	{models.StatusPending, models.StatusCancelled}:    {roles: []models.Role{models.RoleCustomer, models.RoleAdmin, models.RoleSystem}},
	{models.StatusConfirmed, models.StatusCancelled}:  {roles: []models.Role{models.RoleCustomer, models.RoleAdmin, models.RoleSystem}},
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.OrderStatus) bool {
	switch s {
	case models.StatusCompleted, models.StatusCancelled, models.StatusDelivered:
		return true
	}
	return false
}

// CanCancel reports whether an order in status s may still be cancelled.
func CanCancel(s models.OrderStatus) bool {
	return s == models.StatusPending || s == models.StatusConfirmed
}

// Next lists the statuses reachable from o for the given actor.
func Next(o *models.Order, actor models.Actor) []models.OrderStatus {
	var out []models.OrderStatus
	for _, to := range models.AllStatuses {
		if check(o, to, actor) == nil {
			out = append(out, to)
		}
	}
	return out
}

func check(o *models.Order, to models.OrderStatus, actor models.Actor) error {
	if IsTerminal(o.Status) {
		return fmt.Errorf("%w: order %s is %s", apperr.ErrInvalidTransition, o.OrderID, o.Status)
	}
	r, ok := table[edge{o.Status, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, o.Status, to)
	}
	switch r.types {
	case deliveryOnly:
		if o.OrderType != models.OrderDelivery {
			return fmt.Errorf("%w: %s is only for delivery orders", apperr.ErrInvalidTransition, to)
		}
	case counterOnly:
		if o.OrderType == models.OrderDelivery {
			return fmt.Errorf("%w: %s is not used for delivery orders", apperr.ErrInvalidTransition, to)
		}
	}
	if !roleAllowed(r, o, actor) {
		return fmt.Errorf("%w: role %s may not move %s -> %s", apperr.ErrInvalidTransition, actor.Role, o.Status, to)
	}
	return nil
}

func roleAllowed(r rule, o *models.Order, actor models.Actor) bool {
	for _, role := range r.roles {
		if role != actor.Role {
			continue
		}
		switch {
		case role == models.RoleDriver && r.assignedDriver:
			return o.AssignedDriverID != "" && o.AssignedDriverID == actor.ID
		case role == models.RoleCustomer:
			return !o.IsGuest() && o.UserID == actor.ID
		}
		return true
	}
	return false
}

// Transition moves o to status to on behalf of actor, stamping the matching
// lifecycle timestamp if it is still unset. The order is left untouched on error.
func Transition(o *models.Order, to models.OrderStatus, actor models.Actor, now time.Time) error {
	if to == models.StatusCancelled {
		return Cancel(o, actor, now)
	}
	if err := check(o, to, actor); err != nil {
		return err
	}
	apply(o, to, now)
	return nil
}

// Cancel is allowed from pending and confirmed only. The caller is
// responsible for refunding an associated payment.
func Cancel(o *models.Order, actor models.Actor, now time.Time) error {
	if !CanCancel(o.Status) {
		return fmt.Errorf("%w: %w: order %s is %s", apperr.ErrIllegalCancellation, apperr.ErrInvalidTransition, o.OrderID, o.Status)
	}
	r := table[edge{o.Status, models.StatusCancelled}]
	if !roleAllowed(r, o, actor) {
		return fmt.Errorf("%w: %s may not cancel order %s", apperr.ErrForbidden, actor.Role, o.OrderID)
	}
	apply(o, models.StatusCancelled, now)
	return nil
}

func apply(o *models.Order, to models.OrderStatus, now time.Time) {
	now = notBefore(now, latestStamp(o))
	switch to {
	case models.StatusConfirmed:
		stamp(&o.ConfirmedAt, now)
	case models.StatusReady:
		stamp(&o.ReadyAt, now)
	case models.StatusPickedUp:
		stamp(&o.PickedUpAt, now)
	case models.StatusDelivered:
		stamp(&o.DeliveredAt, now)
		stamp(&o.CompletedAt, now)
	case models.StatusCompleted:
		stamp(&o.CompletedAt, now)
	case models.StatusCancelled:
		stamp(&o.CancelledAt, now)
	}
	o.Status = to
	o.UpdatedAt = now
}

func stamp(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	t := now
	*field = &t
}

func latestStamp(o *models.Order) time.Time {
	latest := o.CreatedAt
	for _, t := range []*time.Time{o.ConfirmedAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt, o.CompletedAt, o.CancelledAt} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

// notBefore keeps stamps monotonic when the clock steps backwards.
func notBefore(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}
