package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/money"
)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedger(sqlx.NewDb(db, "postgres")), mock
}

func TestLedgerAppend(t *testing.T) {
	ledger, mock := newMockLedger(t)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_ledger")).
			WithArgs("l-1", "b-1", "intent_created", "pi_1", int64(3000), "USD", "requires_payment_method", "", at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := ledger.Append(context.Background(), policies.LedgerEntry{
			ID:        "l-1",
			BookingID: "b-1",
			Kind:      policies.LedgerIntentCreated,
			Reference: "pi_1",
			Amount:    money.Must(3000, "USD"),
			Status:    "requires_payment_method",
			At:        at,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_ledger")).
			WillReturnError(errors.New("connection reset"))

		err := ledger.Append(context.Background(), policies.LedgerEntry{ID: "l-2", BookingID: "b-1", At: at})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append ledger entry l-2")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerListByBooking(t *testing.T) {
	ledger, mock := newMockLedger(t)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, booking_id, kind")).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "kind", "reference", "amount", "currency", "status", "detail", "recorded_at",
		}).
			AddRow("l-1", "b-1", "intent_created", "pi_1", int64(3000), "USD", "requires_payment_method", "", at).
			AddRow("l-2", "b-1", "refund", "re_1", int64(1500), "USD", "succeeded", "cancelled by renter", at.Add(time.Hour)))

	entries, err := ledger.ListByBooking(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, policies.LedgerIntentCreated, entries[0].Kind)
	assert.Equal(t, money.Must(1500, "USD"), entries[1].Amount)
	assert.Equal(t, "cancelled by renter", entries[1].Detail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerEnsureSchema(t *testing.T) {
	ledger, mock := newMockLedger(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS payment_ledger")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ledger.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
