package storage

import (
	"context"
	"time"

	"github.com/example/bakery-orders/internal/models"
)

// Store is the persistence boundary for orders, payments, driver state,
// saved addresses and the menu. All mutations that must be consistent with
// an order's state go through WithinTx.
type Store interface {
	// WithinTx runs fn in one transaction. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListUnassignedDeliverable(ctx context.Context) ([]*models.Order, error)
	ListKitchenQueue(ctx context.Context) ([]*models.Order, error)
	ListDriverOrders(ctx context.Context, driverID string, statuses []models.OrderStatus) ([]*models.Order, error)
	DriverEarnings(ctx context.Context, driverID string, from, to time.Time) (models.Money, int, error)

	GetPayment(ctx context.Context, orderID string) (*models.Payment, error)

	GetDriver(ctx context.Context, driverID string) (*models.Driver, error)
	ListAvailableDrivers(ctx context.Context) ([]models.Driver, error)
	GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error)

	ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error)

	ListMenu(ctx context.Context, f MenuFilter) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error)
	CreateMenuItem(ctx context.Context, item *models.MenuItem) error
	UpdateMenuItem(ctx context.Context, item *models.MenuItem) error
	DeleteMenuItem(ctx context.Context, id int64) error

	Close() error
}

// Tx is a unit of work. Lock* methods hold the row until commit.
type Tx interface {
	LockOrder(ctx context.Context, orderID string) (*models.Order, error)
	LockOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, o *models.Order) error

	MenuItems(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error)

	LockPayment(ctx context.Context, orderID string) (*models.Payment, error)
	UpsertPayment(ctx context.Context, p *models.Payment) error

	UpsertDriver(ctx context.Context, d *models.Driver) error
	UpsertDriverLocation(ctx context.Context, loc models.DriverLocation) error

	// LockAddresses serialises address mutations for one user.
	LockAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error)
	InsertAddress(ctx context.Context, a *models.SavedAddress) error
	UpdateAddress(ctx context.Context, a *models.SavedAddress) error
	DeleteAddress(ctx context.Context, userID string, id int64) error
	ClearDefaultAddress(ctx context.Context, userID string, exceptID int64) error
}

type MenuFilter struct {
	AvailableOnly bool
	Category      models.MenuCategory
}

// DeliverableStatuses are the states in which a delivery order can be picked
// by a driver.
var DeliverableStatuses = []models.OrderStatus{models.StatusConfirmed, models.StatusPreparing, models.StatusReady}

// KitchenStatuses are shown on the kitchen display.
var KitchenStatuses = []models.OrderStatus{models.StatusPending, models.StatusConfirmed, models.StatusPreparing, models.StatusReady}

// EarningStatuses count towards driver earnings.
var EarningStatuses = []models.OrderStatus{models.StatusDelivered, models.StatusCompleted}
