package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReturnTransitions(t *testing.T) {
	allowed := [][2]MovementStatus{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusPending, StatusCancelled},
		{StatusApproved, StatusCompleted},
		{StatusApproved, StatusCancelled},
	}
	for _, pair := range allowed {
		require.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]MovementStatus{
		{StatusPending, StatusCompleted},
		{StatusApproved, StatusPending},
		{StatusRejected, StatusApproved},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusPosted, StatusApproved},
	}
	for _, pair := range denied {
		require.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}
