package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies embedded migrations not yet recorded in schema_migrations,
// in lexical order, each in its own transaction. It returns the files it ran.
func (p *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := p.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var ran []string
	for _, n := range names {
		if applied[n] {
			continue
		}
		b, err := migrationFS.ReadFile("migrations/" + n)
		if err != nil {
			return ran, err
		}
		if err := p.applyMigration(ctx, n, string(b)); err != nil {
			return ran, err
		}
		ran = append(ran, n)
	}
	return ran, nil
}

func (p *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (p *PostgresStore) applyMigration(ctx context.Context, name, body string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const orderColumns = `id, order_id, COALESCE(user_id, ''), order_type, status, subtotal, delivery_fee,
	COALESCE(gateway_order_id, ''), customer_name, customer_phone, customer_email, delivery_address,
	delivery_phone, delivery_notes, delivery_lat, delivery_lng, special_instructions, table_number,
	COALESCE(assigned_driver_id, ''), assigned_at, created_at, updated_at, confirmed_at, ready_at,
	picked_up_at, delivered_at, completed_at, cancelled_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.OrderID, &o.UserID, &o.OrderType, &o.Status, &o.Subtotal, &o.DeliveryFee,
		&o.GatewayOrderID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.DeliveryAddress,
		&o.DeliveryPhone, &o.DeliveryNotes, &o.DeliveryLat, &o.DeliveryLng, &o.SpecialInstructions, &o.TableNumber,
		&o.AssignedDriverID, &o.AssignedAt, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ReadyAt,
		&o.PickedUpAt, &o.DeliveredAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func getOrder(ctx context.Context, q querier, where string, arg any, lock bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if lock {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", apperr.ErrOrderNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func listOrders(ctx context.Context, q querier, query string, withLines bool, args ...any) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if withLines {
		if err := loadLines(ctx, q, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadLines(ctx context.Context, q querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.OrderID] = o
		ids = append(ids, o.OrderID)
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, menu_item_id, name, unit_price, quantity FROM order_lines WHERE order_id = ANY($1) ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.MenuItemID, &l.Name, &l.UnitPrice, &l.Quantity); err != nil {
			return err
		}
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func statusStrings(set []models.OrderStatus) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

func (p *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, p.db, `order_id = $1`, orderID, false)
}

func (p *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return listOrders(ctx, p.db,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, true, userID)
}

func (p *PostgresStore) ListUnassignedDeliverable(ctx context.Context) ([]*models.Order, error) {
	return listOrders(ctx, p.db,
		`SELECT `+orderColumns+` FROM orders
		 WHERE order_type = $1 AND assigned_driver_id IS NULL AND status = ANY($2)
		 ORDER BY created_at DESC, id DESC`,
		false, string(models.OrderDelivery), pq.Array(statusStrings(DeliverableStatuses)))
}

func (p *PostgresStore) ListKitchenQueue(ctx context.Context) ([]*models.Order, error) {
	return listOrders(ctx, p.db,
		`SELECT `+orderColumns+` FROM orders WHERE status = ANY($1) ORDER BY created_at ASC, id ASC`,
		true, pq.Array(statusStrings(KitchenStatuses)))
}

func (p *PostgresStore) ListDriverOrders(ctx context.Context, driverID string, statuses []models.OrderStatus) ([]*models.Order, error) {
	return listOrders(ctx, p.db,
		`SELECT `+orderColumns+` FROM orders WHERE assigned_driver_id = $1 AND status = ANY($2)
		 ORDER BY created_at DESC, id DESC`,
		true, driverID, pq.Array(statusStrings(statuses)))
}

func (p *PostgresStore) DriverEarnings(ctx context.Context, driverID string, from, to time.Time) (models.Money, int, error) {
	var total models.Money
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delivery_fee), 0), COUNT(*) FROM orders
		 WHERE assigned_driver_id = $1 AND status = ANY($2) AND completed_at >= $3 AND completed_at < $4`,
		driverID, pq.Array(statusStrings(EarningStatuses)), from, to).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

const paymentColumns = `id, order_id, method, status, transaction_id, amount, reference, evidence_url,
	verification_notes, created_at, updated_at, paid_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var pm models.Payment
	err := row.Scan(&pm.ID, &pm.OrderID, &pm.Method, &pm.Status, &pm.TransactionID, &pm.Amount, &pm.Reference,
		&pm.EvidenceURL, &pm.VerificationNotes, &pm.CreatedAt, &pm.UpdatedAt, &pm.PaidAt)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func getPayment(ctx context.Context, q querier, orderID string, lock bool) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	pm, err := scanPayment(q.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for %s: %w", orderID, apperr.ErrNotFound)
	}
	return pm, err
}

func (p *PostgresStore) GetPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	return getPayment(ctx, p.db, orderID, false)
}

func (p *PostgresStore) GetDriver(ctx context.Context, driverID string) (*models.Driver, error) {
	var d models.Driver
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, vehicle_number, is_available, updated_at FROM drivers WHERE id = $1`, driverID).
		Scan(&d.ID, &d.Name, &d.Phone, &d.VehicleNumber, &d.Available, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", driverID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) ListAvailableDrivers(ctx context.Context) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, phone, vehicle_number, is_available, updated_at FROM drivers WHERE is_available ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.VehicleNumber, &d.Available, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	var l models.DriverLocation
	err := p.db.QueryRowContext(ctx,
		`SELECT driver_id, lat, lng, heading, speed, updated_at FROM driver_locations WHERE driver_id = $1`, driverID).
		Scan(&l.DriverID, &l.Lat, &l.Lng, &l.Heading, &l.Speed, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location for %s: %w", driverID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const addressColumns = `id, user_id, label, house_flat, area_street, landmark, city, pincode, latitude, longitude, is_default, created_at`

func listAddresses(ctx context.Context, q querier, userID string) ([]models.SavedAddress, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM saved_addresses WHERE user_id = $1 ORDER BY is_default DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SavedAddress
	for rows.Next() {
		var a models.SavedAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.Label, &a.HouseFlat, &a.AreaStreet, &a.Landmark, &a.City,
			&a.Pincode, &a.Lat, &a.Lng, &a.IsDefault, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	return listAddresses(ctx, p.db, userID)
}

const menuColumns = `id, name, description, category, price, image_url, available, created_at, updated_at`

func scanMenuItem(row rowScanner) (models.MenuItem, error) {
	var it models.MenuItem
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Category, &it.Price, &it.ImageURL, &it.Available,
		&it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (p *PostgresStore) ListMenu(ctx context.Context, f MenuFilter) ([]models.MenuItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+menuColumns+` FROM menu_items
		 WHERE ($1 = FALSE OR available) AND ($2 = '' OR category = $2)
		 ORDER BY category, name`, f.AvailableOnly, string(f.Category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MenuItem
	for rows.Next() {
		it, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error) {
	it, err := scanMenuItem(p.db.QueryRowContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("menu item %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (p *PostgresStore) CreateMenuItem(ctx context.Context, it *models.MenuItem) error {
	return p.db.QueryRowContext(ctx,
		`INSERT INTO menu_items (name, description, category, price, image_url, available)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		it.Name, it.Description, string(it.Category), it.Price, it.ImageURL, it.Available).
		Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
}

func (p *PostgresStore) UpdateMenuItem(ctx context.Context, it *models.MenuItem) error {
	err := p.db.QueryRowContext(ctx,
		`UPDATE menu_items SET name = $2, description = $3, category = $4, price = $5, image_url = $6,
		 available = $7, updated_at = now() WHERE id = $1 RETURNING created_at, updated_at`,
		it.ID, it.Name, it.Description, string(it.Category), it.Price, it.ImageURL, it.Available).
		Scan(&it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("menu item %d: %w", it.ID, apperr.ErrNotFound)
	}
	return err
}

func (p *PostgresStore) DeleteMenuItem(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("menu item %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, t.q, `order_id = $1`, orderID, true)
}

func (t *pgTx) LockOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty gateway ref", apperr.ErrOrderNotFound)
	}
	return getOrder(ctx, t.q, `gateway_order_id = $1`, ref, true)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO orders (order_id, user_id, order_type, status, subtotal, delivery_fee, gateway_order_id,
			customer_name, customer_phone, customer_email, delivery_address, delivery_phone, delivery_notes,
			delivery_lat, delivery_lng, special_instructions, table_number, assigned_driver_id, assigned_at,
			created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, NULLIF($18, ''), $19, $20, $21)
		 RETURNING id`,
		o.OrderID, o.UserID, string(o.OrderType), string(o.Status), o.Subtotal, o.DeliveryFee, o.GatewayOrderID,
		o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.DeliveryAddress, o.DeliveryPhone, o.DeliveryNotes,
		o.DeliveryLat, o.DeliveryLng, o.SpecialInstructions, o.TableNumber, o.AssignedDriverID, o.AssignedAt,
		o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.OrderID
		if err := t.q.QueryRowContext(ctx,
			`INSERT INTO order_lines (order_id, menu_item_id, name, unit_price, quantity)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			l.OrderID, l.MenuItemID, l.Name, l.UnitPrice, l.Quantity).Scan(&l.ID); err != nil {
			return fmt.Errorf("insert line for %s: %w", o.OrderID, err)
		}
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE orders SET status = $2, gateway_order_id = NULLIF($3, ''), assigned_driver_id = NULLIF($4, ''),
			assigned_at = $5, updated_at = $6, confirmed_at = $7, ready_at = $8, picked_up_at = $9,
			delivered_at = $10, completed_at = $11, cancelled_at = $12
		 WHERE order_id = $1`,
		o.OrderID, string(o.Status), o.GatewayOrderID, o.AssignedDriverID, o.AssignedAt, o.UpdatedAt,
		o.ConfirmedAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt, o.CompletedAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.OrderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrOrderNotFound, o.OrderID)
	}
	return nil
}

func (t *pgTx) MenuItems(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error) {
	out := make(map[int64]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.q.QueryContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

func (t *pgTx) LockPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	return getPayment(ctx, t.q, orderID, true)
}

func (t *pgTx) UpsertPayment(ctx context.Context, pm *models.Payment) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, method, status, transaction_id, amount, reference, evidence_url,
			verification_notes, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (order_id) DO UPDATE SET
			method = EXCLUDED.method, status = EXCLUDED.status, transaction_id = EXCLUDED.transaction_id,
			amount = EXCLUDED.amount, reference = EXCLUDED.reference, evidence_url = EXCLUDED.evidence_url,
			verification_notes = EXCLUDED.verification_notes, paid_at = EXCLUDED.paid_at, updated_at = now()
		 RETURNING id, created_at, updated_at`,
		pm.OrderID, string(pm.Method), string(pm.Status), pm.TransactionID, pm.Amount, pm.Reference,
		pm.EvidenceURL, pm.VerificationNotes, pm.PaidAt).Scan(&pm.ID, &pm.CreatedAt, &pm.UpdatedAt)
	if isUniqueViolation(err, "transaction_id") {
		return fmt.Errorf("%w: transaction %s", apperr.ErrDuplicatePayment, pm.TransactionID)
	}
	return err
}

func isUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return strings.Contains(pqErr.Constraint, column)
}

func (t *pgTx) UpsertDriver(ctx context.Context, d *models.Driver) error {
	return t.q.QueryRowContext(ctx,
		`INSERT INTO drivers (id, name, phone, vehicle_number, is_available, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone,
			vehicle_number = EXCLUDED.vehicle_number, is_available = EXCLUDED.is_available, updated_at = now()
		 RETURNING updated_at`,
		d.ID, d.Name, d.Phone, d.VehicleNumber, d.Available).Scan(&d.UpdatedAt)
}

func (t *pgTx) UpsertDriverLocation(ctx context.Context, l models.DriverLocation) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO driver_locations (driver_id, lat, lng, heading, speed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (driver_id) DO UPDATE SET lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			heading = EXCLUDED.heading, speed = EXCLUDED.speed, updated_at = EXCLUDED.updated_at`,
		l.DriverID, l.Lat, l.Lng, l.Heading, l.Speed, l.UpdatedAt)
	return err
}

func (t *pgTx) LockAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "saved_addresses:"+userID); err != nil {
		return nil, err
	}
	return listAddresses(ctx, t.q, userID)
}

func (t *pgTx) InsertAddress(ctx context.Context, a *models.SavedAddress) error {
	return t.q.QueryRowContext(ctx,
		`INSERT INTO saved_addresses (user_id, label, house_flat, area_street, landmark, city, pincode,
			latitude, longitude, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`,
		a.UserID, a.Label, a.HouseFlat, a.AreaStreet, a.Landmark, a.City, a.Pincode, a.Lat, a.Lng, a.IsDefault).
		Scan(&a.ID, &a.CreatedAt)
}

func (t *pgTx) UpdateAddress(ctx context.Context, a *models.SavedAddress) error {
	err := t.q.QueryRowContext(ctx,
		`UPDATE saved_addresses SET label = $3, house_flat = $4, area_street = $5, landmark = $6, city = $7,
			pincode = $8, latitude = $9, longitude = $10, is_default = $11
		 WHERE id = $1 AND user_id = $2 RETURNING created_at`,
		a.ID, a.UserID, a.Label, a.HouseFlat, a.AreaStreet, a.Landmark, a.City, a.Pincode, a.Lat, a.Lng, a.IsDefault).
		Scan(&a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("address %d: %w", a.ID, apperr.ErrNotFound)
	}
	return err
}

func (t *pgTx) DeleteAddress(ctx context.Context, userID string, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM saved_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("address %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ClearDefaultAddress(ctx context.Context, userID string, exceptID int64) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE saved_addresses SET is_default = FALSE WHERE user_id = $1 AND id <> $2 AND is_default`, userID, exceptID)
	return err
}
