package lifecycle

import (
	"fmt"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

var labels = map[models.OrderStatus]string{
	models.StatusPending:   "Pending",
	models.StatusConfirmed: "Confirmed",
	models.StatusPreparing: "Preparing",
	models.StatusReady:     "Ready",
	models.StatusServed:    "Served",
	models.StatusPickedUp:  "Picked Up",
	models.StatusOnTheWay:  "On the Way",
	models.StatusDelivered: "Delivered",
	models.StatusCompleted: "Completed",
	models.StatusCancelled: "Cancelled",
}

// StatusLabel is the human readable form used by tracking and kitchen screens.
func StatusLabel(s models.OrderStatus) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// rank orders the forward path; served and picked_up share a rank because
// they are alternative branches after ready.
var rank = map[models.OrderStatus]int{
	models.StatusPending:   0,
	models.StatusConfirmed: 1,
	models.StatusPreparing: 2,
	models.StatusReady:     3,
	models.StatusServed:    4,
	models.StatusPickedUp:  4,
	models.StatusOnTheWay:  5,
	models.StatusDelivered: 6,
	models.StatusCompleted: 7,
}

// CheckConsistency verifies that the populated timestamps agree with the
// status and are non-decreasing along the path.
func CheckConsistency(o *models.Order) error {
	if o.Status == models.StatusCancelled {
		if o.CancelledAt == nil {
			return fmt.Errorf("order %s cancelled without cancelled_at", o.OrderID)
		}
		return checkOrder(o.OrderID, o.CreatedAt, o.ConfirmedAt, o.CancelledAt)
	}
	r, ok := rank[o.Status]
	if !ok {
		return fmt.Errorf("order %s has unknown status %q", o.OrderID, o.Status)
	}
	if r >= rank[models.StatusConfirmed] && o.ConfirmedAt == nil {
		return fmt.Errorf("order %s is %s without confirmed_at", o.OrderID, o.Status)
	}
	if r >= rank[models.StatusReady] && o.ReadyAt == nil {
		return fmt.Errorf("order %s is %s without ready_at", o.OrderID, o.Status)
	}
	delivery := o.OrderType == models.OrderDelivery
	if delivery && r >= rank[models.StatusPickedUp] && o.Status != models.StatusCompleted && o.PickedUpAt == nil {
		return fmt.Errorf("order %s is %s without picked_up_at", o.OrderID, o.Status)
	}
	if o.Status == models.StatusDelivered && (o.DeliveredAt == nil || o.CompletedAt == nil) {
		return fmt.Errorf("order %s delivered without delivered_at/completed_at", o.OrderID)
	}
	if o.Status == models.StatusCompleted && o.CompletedAt == nil {
		return fmt.Errorf("order %s completed without completed_at", o.OrderID)
	}
	if r < rank[models.StatusConfirmed] && o.ConfirmedAt != nil {
		return fmt.Errorf("order %s is %s but has confirmed_at", o.OrderID, o.Status)
	}
	if r < rank[models.StatusReady] && o.ReadyAt != nil {
		return fmt.Errorf("order %s is %s but has ready_at", o.OrderID, o.Status)
	}
	if o.CancelledAt != nil {
		return fmt.Errorf("order %s is %s but has cancelled_at", o.OrderID, o.Status)
	}
	return checkOrder(o.OrderID, o.CreatedAt, o.ConfirmedAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt, o.CompletedAt)
}

func checkOrder(id string, created time.Time, stamps ...*time.Time) error {
	prev := created
	for _, t := range stamps {
		if t == nil {
			continue
		}
		if t.Before(prev) {
			return fmt.Errorf("order %s timestamps go backwards at %s", id, t.Format(time.RFC3339))
		}
		prev = *t
	}
	return nil
}
