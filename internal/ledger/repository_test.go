package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

func TestClassifyPgErrorUniqueViolation(t *testing.T) {
	err := classifyPgError(&pgconn.PgError{Code: "23505"})

	var conflict shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, shared.CodeConflict, shared.ErrorCode(err))
}

func TestClassifyPgErrorSerializationFailure(t *testing.T) {
	err := classifyPgError(fmt.Errorf("platform/db: commit tx: %w",
		&pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}))

	var conflict shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, shared.CodeConflict, shared.ErrorCode(err))
}

func TestClassifyPgErrorPassesThroughOtherErrors(t *testing.T) {
	sentinel := errors.New("connection reset")
	require.Same(t, sentinel, classifyPgError(sentinel))

	other := &pgconn.PgError{Code: "23503"}
	require.Equal(t, error(other), classifyPgError(other))
}
