// Package postgres implements the storage interfaces backed by PostgreSQL.
// Currency amounts are stored as NUMERIC(78,0) so full 256-bit values survive
// the round trip.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/domain/payment"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.OperatorStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- OrderStore ---------------------------------------------------------------

const orderColumns = `id, seller, asset_class, asset_contract, item_id, quantity,
	unit_price::text, payment_token, designated_buyer, max_per_purchase, status,
	created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	now := time.Now().UTC()
	ord.CreatedAt = now
	ord.UpdatedAt = now

	args := []any{
		ord.Seller, string(ord.AssetClass), ord.AssetContract, ord.ItemID,
		int64(ord.Quantity), numeric(ord.UnitPrice), ord.PaymentToken,
		ord.DesignatedBuyer, int64(ord.MaxPerPurchase), string(ord.Status),
		ord.CreatedAt, ord.UpdatedAt,
	}

	if ord.ID == "" {
		var id int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO dex_orders (seller, asset_class, asset_contract, item_id,
				quantity, unit_price, payment_token, designated_buyer,
				max_per_purchase, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`, args...).Scan(&id)
		if err != nil {
			return order.Order{}, err
		}
		ord.ID = strconv.FormatInt(id, 10)
		return ord, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dex_orders (id, seller, asset_class, asset_contract, item_id,
			quantity, unit_price, payment_token, designated_buyer,
			max_per_purchase, status, created_at, updated_at)
		VALUES ($1::bigint, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13)
	`, append([]any{ord.ID}, args...)...)
	if err != nil {
		return order.Order{}, err
	}
	return ord, nil
}

func (s *Store) UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	ord.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE dex_orders
		SET quantity = $2, status = $3, updated_at = $4
		WHERE id = $1::bigint
	`, ord.ID, int64(ord.Quantity), string(ord.Status), ord.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return order.Order{}, fmt.Errorf("order %s: %w", ord.ID, storage.ErrNotFound)
	}
	return s.GetOrder(ctx, ord.ID)
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM dex_orders
		WHERE id = $1::bigint
	`, id)

	ord, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return order.Order{}, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
		}
		return order.Order{}, err
	}
	return ord, nil
}

func (s *Store) ListOrders(ctx context.Context, seller string, openOnly bool) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM dex_orders
		WHERE ($1 = '' OR seller = $1)
		  AND (NOT $2 OR status = $3)
		ORDER BY id
	`, seller, openOnly, string(order.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ord)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (order.Order, error) {
	var (
		id, price      string
		class, status  string
		quantity       int64
		maxPerPurchase int64
		ord            order.Order
	)
	err := row.Scan(&id, &ord.Seller, &class, &ord.AssetContract, &ord.ItemID,
		&quantity, &price, &ord.PaymentToken, &ord.DesignatedBuyer,
		&maxPerPurchase, &status, &ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}

	ord.ID = id
	ord.AssetClass = order.AssetClass(class)
	ord.Status = order.Status(status)
	ord.Quantity = uint64(quantity)
	ord.MaxPerPurchase = uint64(maxPerPurchase)
	ord.UnitPrice, err = parseNumeric(price)
	return ord, err
}

// --- LedgerStore --------------------------------------------------------------

const accountColumns = `address, balance::text, total_deposited::text,
	total_spent::text, created_at, updated_at`

func (s *Store) CreateLedgerAccount(ctx context.Context, acct payment.Account) (payment.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dex_ledger_accounts (address, balance, total_deposited,
			total_spent, created_at, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6)
	`, acct.Address, numeric(acct.Balance), numeric(acct.TotalDeposited),
		numeric(acct.TotalSpent), acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return payment.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateLedgerAccount(ctx context.Context, acct payment.Account) (payment.Account, error) {
	acct.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE dex_ledger_accounts
		SET balance = $2::numeric, total_deposited = $3::numeric,
			total_spent = $4::numeric, updated_at = $5
		WHERE address = $1
	`, acct.Address, numeric(acct.Balance), numeric(acct.TotalDeposited),
		numeric(acct.TotalSpent), acct.UpdatedAt)
	if err != nil {
		return payment.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return payment.Account{}, fmt.Errorf("ledger account %s: %w", acct.Address, storage.ErrNotFound)
	}
	return s.GetLedgerAccount(ctx, acct.Address)
}

func (s *Store) GetLedgerAccount(ctx context.Context, address string) (payment.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM dex_ledger_accounts
		WHERE address = $1
	`, address)

	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.Account{}, fmt.Errorf("ledger account %s: %w", address, storage.ErrNotFound)
		}
		return payment.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListLedgerAccounts(ctx context.Context) ([]payment.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM dex_ledger_accounts
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func scanAccount(row scanner) (payment.Account, error) {
	var (
		acct                      payment.Account
		balance, deposited, spent string
	)
	err := row.Scan(&acct.Address, &balance, &deposited, &spent,
		&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return payment.Account{}, err
	}

	if acct.Balance, err = parseNumeric(balance); err != nil {
		return payment.Account{}, err
	}
	if acct.TotalDeposited, err = parseNumeric(deposited); err != nil {
		return payment.Account{}, err
	}
	acct.TotalSpent, err = parseNumeric(spent)
	return acct, err
}

func (s *Store) CreateLedgerEntry(ctx context.Context, entry payment.Entry) (payment.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dex_ledger_entries (id, address, entry_type, amount,
			order_id, reference, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
	`, entry.ID, entry.Address, string(entry.Type), numeric(entry.Amount),
		entry.OrderID, entry.Reference, entry.CreatedAt)
	if err != nil {
		return payment.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, address string) ([]payment.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, entry_type, amount::text, order_id, reference, created_at
		FROM dex_ledger_entries
		WHERE address = $1
		ORDER BY created_at, id
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.Entry
	for rows.Next() {
		var (
			entry     payment.Entry
			entryType string
			amount    string
		)
		if err := rows.Scan(&entry.ID, &entry.Address, &entryType, &amount,
			&entry.OrderID, &entry.Reference, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Type = payment.EntryType(entryType)
		if entry.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// --- OperatorStore ------------------------------------------------------------

func (s *Store) AddOperator(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("operator address is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dex_operators (address, added_at)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`, address, time.Now().UTC())
	return err
}

func (s *Store) IsOperator(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM dex_operators WHERE address = $1)
	`, address).Scan(&exists)
	return exists, err
}

func (s *Store) ListOperators(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address FROM dex_operators ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		result = append(result, address)
	}
	return result, rows.Err()
}

// --- EventStore ---------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, evt events.Event) (events.Event, error) {
	evt.ID = uuid.NewString()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dex_events (id, event_type, order_id, seller, asset_class,
			asset_contract, item_id, quantity, unit_price, designated_buyer,
			max_per_purchase, buyer, amount_paid, fee_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, evt.ID, string(evt.Type), evt.OrderID, evt.Seller, evt.AssetClass,
		evt.AssetContract, evt.ItemID, int64(evt.Quantity), evt.UnitPrice,
		evt.DesignatedBuyer, int64(evt.MaxPerPurchase), evt.Buyer,
		evt.AmountPaid, evt.FeePaid, evt.Timestamp)
	if err != nil {
		return events.Event{}, err
	}
	return evt, nil
}

func (s *Store) ListEvents(ctx context.Context, orderID string, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, order_id, seller, asset_class, asset_contract,
			item_id, quantity, unit_price, designated_buyer, max_per_purchase,
			buyer, amount_paid, fee_paid, created_at
		FROM dex_events
		WHERE ($1 = '' OR order_id = $1)
		ORDER BY created_at, id
		LIMIT $2
	`, orderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var (
			evt       events.Event
			eventType string
			quantity  int64
			maxPer    int64
		)
		if err := rows.Scan(&evt.ID, &eventType, &evt.OrderID, &evt.Seller,
			&evt.AssetClass, &evt.AssetContract, &evt.ItemID, &quantity,
			&evt.UnitPrice, &evt.DesignatedBuyer, &maxPer, &evt.Buyer,
			&evt.AmountPaid, &evt.FeePaid, &evt.Timestamp); err != nil {
			return nil, err
		}
		evt.Type = events.Type(eventType)
		evt.Quantity = uint64(quantity)
		evt.MaxPerPurchase = uint64(maxPer)
		result = append(result, evt)
	}
	return result, rows.Err()
}

// --- Helpers ------------------------------------------------------------------

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", raw)
	}
	return v, nil
}
