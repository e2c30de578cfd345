package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/money"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	id          TEXT PRIMARY KEY,
	booking_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	reference   TEXT NOT NULL DEFAULT '',
	amount      BIGINT NOT NULL,
	currency    CHAR(3) NOT NULL,
	status      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payment_ledger_booking_idx ON payment_ledger (booking_id, recorded_at);`

const insertLedgerEntry = `INSERT INTO payment_ledger
	(id, booking_id, kind, reference, amount, currency, status, detail, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

const selectLedgerByBooking = `SELECT id, booking_id, kind, reference, amount, currency, status, detail, recorded_at
	FROM payment_ledger WHERE booking_id = $1 ORDER BY recorded_at, id`

// Ledger is an append-only policies.PaymentLedger. Entries are keyed by id,
// so appending the same entry twice stores it once.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// EnsureSchema creates the ledger table when it is missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("postgres: ledger schema: %w", err)
	}
	return nil
}

type ledgerRow struct {
	ID         string    `db:"id"`
	BookingID  string    `db:"booking_id"`
	Kind       string    `db:"kind"`
	Reference  string    `db:"reference"`
	Amount     int64     `db:"amount"`
	Currency   string    `db:"currency"`
	Status     string    `db:"status"`
	Detail     string    `db:"detail"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (r ledgerRow) toEntry() policies.LedgerEntry {
	return policies.LedgerEntry{
		ID:        r.ID,
		BookingID: r.BookingID,
		Kind:      policies.LedgerKind(r.Kind),
		Reference: r.Reference,
		Amount:    money.Money{Amount: r.Amount, Currency: r.Currency},
		Status:    r.Status,
		Detail:    r.Detail,
		At:        r.RecordedAt.UTC(),
	}
}

func (l *Ledger) Append(ctx context.Context, e policies.LedgerEntry) error {
	currency := e.Amount.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	_, err := l.db.ExecContext(ctx, insertLedgerEntry,
		e.ID, e.BookingID, string(e.Kind), e.Reference,
		e.Amount.Amount, currency, e.Status, e.Detail, e.At.UTC())
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry %s: %w", e.ID, err)
	}
	return nil
}

func (l *Ledger) ListByBooking(ctx context.Context, bookingID string) ([]policies.LedgerEntry, error) {
	var rows []ledgerRow
	if err := l.db.SelectContext(ctx, &rows, selectLedgerByBooking, bookingID); err != nil {
		return nil, fmt.Errorf("postgres: list ledger for %s: %w", bookingID, err)
	}
	out := make([]policies.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}

var _ policies.PaymentLedger = (*Ledger)(nil)
