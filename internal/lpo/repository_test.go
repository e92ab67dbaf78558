package lpo

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// valuesRow feeds column values to Scan with the pgx NULL rule: NULL only
// lands in pointer, slice or map destinations.
type valuesRow []any

func (r valuesRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r[i] == nil {
			switch target.Kind() {
			case reflect.Pointer, reflect.Slice, reflect.Map:
				target.Set(reflect.Zero(target.Type()))
				continue
			default:
				return fmt.Errorf("can't scan into dest[%d]: cannot scan NULL into %T", i, d)
			}
		}
		value := reflect.ValueOf(r[i])
		if target.Kind() == reflect.Pointer && value.Kind() != reflect.Pointer {
			ptr := reflect.New(target.Type().Elem())
			ptr.Elem().Set(value.Convert(target.Type().Elem()))
			target.Set(ptr)
			continue
		}
		target.Set(value.Convert(target.Type()))
	}
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func draftRow(created time.Time) valuesRow {
	zero := decimal.Zero
	return valuesRow{
		int64(7), "LPO-2026-00007", int64(3), "Gulf Office Supplies", int64(1), nil, "AED",
		decimal.NewFromInt(5), zero, decimal.NewFromInt(150), decimal.RequireFromString("7.5"), zero, decimal.RequireFromString("157.5"), "DRAFT",
		[]string{}, []ApprovalStamp{}, nil, nil, nil, nil, int64(1),
		"", "", "", nil, nil, nil, nil, nil,
		"", nil, nil, nil, nil, "", int64(1),
		created, created,
	}
}

func TestScanOrderFreshDraftWithNullColumns(t *testing.T) {
	created := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

	o, err := scanOrder(draftRow(created))
	require.NoError(t, err)
	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, StatusDraft, o.Status)
	assert.Zero(t, o.DepartmentID)
	assert.Zero(t, o.SentBy)
	assert.Zero(t, o.InvoicedBy)
	assert.Zero(t, o.ClosedBy)
	assert.Zero(t, o.CancelledBy)
	assert.Nil(t, o.SentAt)
	assert.Nil(t, o.Rejection)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("157.5")))
}

func TestScanOrderClosedAndRejected(t *testing.T) {
	at := time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC)
	row := draftRow(at)
	row[5] = int64(10)
	row[13] = "CLOSED"
	row[14] = []string{"DEPT", "ACC"}
	row[16], row[17], row[18], row[19] = "GM", int64(4), "budget", at
	row[26] = int64(2)
	row[28] = int64(5)
	row[31] = int64(6)
	row[33] = int64(8)

	o, err := scanOrder(row)
	require.NoError(t, err)
	assert.Equal(t, int64(10), o.DepartmentID)
	assert.Equal(t, []Tier{TierDept, TierAcc}, o.Route)
	assert.Equal(t, int64(2), o.SentBy)
	assert.Equal(t, int64(5), o.InvoicedBy)
	assert.Equal(t, int64(6), o.ClosedBy)
	assert.Equal(t, int64(8), o.CancelledBy)
	require.NotNil(t, o.Rejection)
	assert.Equal(t, Rejection{Tier: TierGM, ActorID: 4, Reason: "budget", At: at}, *o.Rejection)
}

func TestScanOrderNoRows(t *testing.T) {
	_, err := scanOrder(errRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
