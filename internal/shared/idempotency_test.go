package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyDeleteRequiresModule(t *testing.T) {
	store := &IdempotencyStore{}
	err := store.Delete(context.Background(), "grn-1", "")
	require.ErrorIs(t, err, ErrValidation)
	err = store.Delete(context.Background(), "", "LPO_RECEIPT")
	require.ErrorIs(t, err, ErrValidation)

	var missing *IdempotencyStore
	require.NoError(t, missing.Delete(context.Background(), "grn-1", "LPO_RECEIPT"))
}
