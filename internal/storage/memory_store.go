package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

// MemoryStore keeps everything in process. Transactions are serialised by a
// mutex and applied to a copy of the state which replaces the live state on
// commit, so a failing unit of work leaves nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	orders    map[string]*models.Order
	payments  map[string]*models.Payment
	drivers   map[string]models.Driver
	locations map[string]models.DriverLocation
	addresses map[int64]models.SavedAddress
	menu      map[int64]models.MenuItem

	orderSeq, lineSeq, paymentSeq, addressSeq, menuSeq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			orders:    make(map[string]*models.Order),
			payments:  make(map[string]*models.Payment),
			drivers:   make(map[string]models.Driver),
			locations: make(map[string]models.DriverLocation),
			addresses: make(map[int64]models.SavedAddress),
			menu:      make(map[int64]models.MenuItem),
		},
		now: time.Now,
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.orders = make(map[string]*models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	c.payments = make(map[string]*models.Payment, len(s.payments))
	for k, v := range s.payments {
		c.payments[k] = v.Clone()
	}
	c.drivers = make(map[string]models.Driver, len(s.drivers))
	for k, v := range s.drivers {
		c.drivers[k] = v
	}
	c.locations = make(map[string]models.DriverLocation, len(s.locations))
	for k, v := range s.locations {
		c.locations[k] = v
	}
	c.addresses = make(map[int64]models.SavedAddress, len(s.addresses))
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	c.menu = make(map[int64]models.MenuItem, len(s.menu))
	for k, v := range s.menu {
		c.menu[k] = v
	}
	return &c
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{s: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.state.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrOrderNotFound, orderID)
	}
	return o.Clone(), nil
}

func (m *MemoryStore) filterOrders(keep func(*models.Order) bool) []*models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Order
	for _, o := range m.state.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

func newestFirst(list []*models.Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func oldestFirst(list []*models.Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

func statusIn(s models.OrderStatus, set []models.OrderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	out := m.filterOrders(func(o *models.Order) bool { return o.UserID != "" && o.UserID == userID })
	newestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListUnassignedDeliverable(ctx context.Context) ([]*models.Order, error) {
	out := m.filterOrders(func(o *models.Order) bool {
		return o.OrderType == models.OrderDelivery && o.AssignedDriverID == "" && statusIn(o.Status, DeliverableStatuses)
	})
	newestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListKitchenQueue(ctx context.Context) ([]*models.Order, error) {
	out := m.filterOrders(func(o *models.Order) bool { return statusIn(o.Status, KitchenStatuses) })
	oldestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListDriverOrders(ctx context.Context, driverID string, statuses []models.OrderStatus) ([]*models.Order, error) {
	out := m.filterOrders(func(o *models.Order) bool {
		return o.AssignedDriverID == driverID && statusIn(o.Status, statuses)
	})
	newestFirst(out)
	return out, nil
}

func (m *MemoryStore) DriverEarnings(ctx context.Context, driverID string, from, to time.Time) (models.Money, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total models.Money
	count := 0
	for _, o := range m.state.orders {
		if o.AssignedDriverID != driverID || !statusIn(o.Status, EarningStatuses) || o.CompletedAt == nil {
			continue
		}
		if o.CompletedAt.Before(from) || !o.CompletedAt.Before(to) {
			continue
		}
		total = total.Add(o.DeliveryFee)
		count++
	}
	return total, count, nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.state.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for %s: %w", orderID, apperr.ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, driverID string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", driverID, apperr.ErrNotFound)
	}
	return &d, nil
}

func (m *MemoryStore) ListAvailableDrivers(ctx context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Driver
	for _, d := range m.state.drivers {
		if d.Available {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.state.locations[driverID]
	if !ok {
		return nil, fmt.Errorf("location for %s: %w", driverID, apperr.ErrNotFound)
	}
	return &l, nil
}

func (m *MemoryStore) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return userAddresses(m.state, userID), nil
}

func userAddresses(s *memState, userID string) []models.SavedAddress {
	var out []models.SavedAddress
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryStore) ListMenu(ctx context.Context, f MenuFilter) ([]models.MenuItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MenuItem
	for _, it := range m.state.menu {
		if f.AvailableOnly && !it.Available {
			continue
		}
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStore) GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.state.menu[id]
	if !ok {
		return nil, fmt.Errorf("menu item %d: %w", id, apperr.ErrNotFound)
	}
	return &it, nil
}

func (m *MemoryStore) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.menuSeq++
	item.ID = m.state.menuSeq
	now := m.now()
	item.CreatedAt, item.UpdatedAt = now, now
	m.state.menu[item.ID] = *item
	return nil
}

func (m *MemoryStore) UpdateMenuItem(ctx context.Context, item *models.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.state.menu[item.ID]
	if !ok {
		return fmt.Errorf("menu item %d: %w", item.ID, apperr.ErrNotFound)
	}
	item.CreatedAt = prev.CreatedAt
	item.UpdatedAt = m.now()
	m.state.menu[item.ID] = *item
	return nil
}

func (m *MemoryStore) DeleteMenuItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.menu[id]; !ok {
		return fmt.Errorf("menu item %d: %w", id, apperr.ErrNotFound)
	}
	delete(m.state.menu, id)
	return nil
}

type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) LockOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrOrderNotFound, orderID)
	}
	return o.Clone(), nil
}

func (t *memTx) LockOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error) {
	if ref != "" {
		for _, o := range t.s.orders {
			if o.GatewayOrderID == ref {
				return o.Clone(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: gateway ref %q", apperr.ErrOrderNotFound, ref)
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if _, dup := t.s.orders[o.OrderID]; dup {
		return fmt.Errorf("order %s already exists", o.OrderID)
	}
	t.s.orderSeq++
	o.ID = t.s.orderSeq
	for i := range o.Lines {
		t.s.lineSeq++
		o.Lines[i].ID = t.s.lineSeq
		o.Lines[i].OrderID = o.OrderID
	}
	t.s.orders[o.OrderID] = o.Clone()
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	prev, ok := t.s.orders[o.OrderID]
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrOrderNotFound, o.OrderID)
	}
	if o.GatewayOrderID != "" {
		for id, other := range t.s.orders {
			if id != o.OrderID && other.GatewayOrderID == o.GatewayOrderID {
				return fmt.Errorf("gateway ref %s already used by %s", o.GatewayOrderID, id)
			}
		}
	}
	c := o.Clone()
	c.ID = prev.ID
	c.Lines = prev.Lines
	t.s.orders[o.OrderID] = c
	return nil
}

func (t *memTx) MenuItems(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error) {
	out := make(map[int64]models.MenuItem, len(ids))
	for _, id := range ids {
		if it, ok := t.s.menu[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (t *memTx) LockPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	p, ok := t.s.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for %s: %w", orderID, apperr.ErrNotFound)
	}
	return p.Clone(), nil
}

func (t *memTx) UpsertPayment(ctx context.Context, p *models.Payment) error {
	if p.TransactionID != "" {
		for orderID, other := range t.s.payments {
			if orderID != p.OrderID && other.TransactionID == p.TransactionID {
				return fmt.Errorf("%w: transaction %s belongs to %s", apperr.ErrDuplicatePayment, p.TransactionID, orderID)
			}
		}
	}
	now := t.now()
	if prev, ok := t.s.payments[p.OrderID]; ok {
		p.ID = prev.ID
		p.CreatedAt = prev.CreatedAt
	} else {
		t.s.paymentSeq++
		p.ID = t.s.paymentSeq
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.s.payments[p.OrderID] = p.Clone()
	return nil
}

func (t *memTx) UpsertDriver(ctx context.Context, d *models.Driver) error {
	d.UpdatedAt = t.now()
	t.s.drivers[d.ID] = *d
	return nil
}

func (t *memTx) UpsertDriverLocation(ctx context.Context, loc models.DriverLocation) error {
	t.s.locations[loc.DriverID] = loc
	return nil
}

func (t *memTx) LockAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	return userAddresses(t.s, userID), nil
}

func (t *memTx) InsertAddress(ctx context.Context, a *models.SavedAddress) error {
	t.s.addressSeq++
	a.ID = t.s.addressSeq
	a.CreatedAt = t.now()
	t.s.addresses[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAddress(ctx context.Context, a *models.SavedAddress) error {
	prev, ok := t.s.addresses[a.ID]
	if !ok || prev.UserID != a.UserID {
		return fmt.Errorf("address %d: %w", a.ID, apperr.ErrNotFound)
	}
	a.CreatedAt = prev.CreatedAt
	t.s.addresses[a.ID] = *a
	return nil
}

func (t *memTx) DeleteAddress(ctx context.Context, userID string, id int64) error {
	prev, ok := t.s.addresses[id]
	if !ok || prev.UserID != userID {
		return fmt.Errorf("address %d: %w", id, apperr.ErrNotFound)
	}
	delete(t.s.addresses, id)
	return nil
}

func (t *memTx) ClearDefaultAddress(ctx context.Context, userID string, exceptID int64) error {
	for id, a := range t.s.addresses {
		if a.UserID == userID && id != exceptID && a.IsDefault {
			a.IsDefault = false
			t.s.addresses[id] = a
		}
	}
	return nil
}
