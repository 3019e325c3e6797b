package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresLockOrderSelectsForUpdate(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE order_id = \$1 FOR UPDATE`).
		WithArgs("ORD-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := p.WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockOrder(context.Background(), "ORD-404")
		return err
	})
	if !errors.Is(err, apperr.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresUpsertPaymentMapsDuplicateTransaction(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments .* ON CONFLICT \(order_id\) DO UPDATE`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_transaction_id_key"})
	mock.ExpectRollback()

	err := p.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpsertPayment(context.Background(), &models.Payment{
			OrderID: "ORD-2", Method: models.MethodRazorpay, Status: models.PaymentCompleted,
			TransactionID: "pay_DUP", Amount: models.MustMoney("199.50"),
		})
	})
	if !errors.Is(err, apperr.ErrDuplicatePayment) {
		t.Fatalf("expected duplicate payment, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "payments_transaction_id_key"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"matching constraint", dup, true},
		{"wrapped", errors.Join(errors.New("insert"), dup), true},
		{"other constraint", &pq.Error{Code: "23505", Constraint: "payments_order_id_key"}, false},
		{"other code", &pq.Error{Code: "23503", Constraint: "payments_transaction_id_key"}, false},
		{"not a pq error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err, "transaction_id"); got != tc.want {
			t.Fatalf("%s: got %v", tc.name, got)
		}
	}
}

func TestPostgresLockAddressesTakesAdvisoryLock(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("saved_addresses:u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM saved_addresses`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := p.WithinTx(context.Background(), func(tx Tx) error {
		list, err := tx.LockAddresses(context.Background(), "u-1")
		if err == nil && len(list) != 0 {
			t.Errorf("unexpected addresses %+v", list)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresMigrateRecordsAndSkipsApplied(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS menu_items`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("001_init.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ran, err := p.Migrate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ran) != 1 || ran[0] != "001_init.sql" {
		t.Fatalf("ran %v", ran)
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_init.sql"))
	ran, err = p.Migrate(context.Background())
	if err != nil || len(ran) != 0 {
		t.Fatalf("second run applied %v, %v", ran, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
