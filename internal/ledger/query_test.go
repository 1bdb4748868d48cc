package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovementSortOrderAllowList(t *testing.T) {
	require.Equal(t, "m.ref_no ASC", movementSortOrder("ref_no", "asc"))
	require.Equal(t, "m.tx_date DESC", movementSortOrder("tx_date", "desc"))
	require.Equal(t, "s.name DESC", movementSortOrder("supplier", ""))

	// Anything off the allow-list falls back to the stable default.
	require.Equal(t, "m.tx_date DESC, m.id DESC", movementSortOrder("", ""))
	require.Equal(t, "m.tx_date DESC, m.id DESC", movementSortOrder("ref_no; DROP TABLE movements", "asc"))
}

func TestStockSortOrderAllowList(t *testing.T) {
	require.Equal(t, "r.qty_available DESC", stockSortOrder("qty", "desc"))
	require.Equal(t, "v.name ASC", stockSortOrder("variation", ""))
	require.Equal(t, "r.variation_id ASC", stockSortOrder("balance", ""))
}
