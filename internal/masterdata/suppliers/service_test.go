package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockpile-wms/stockpile/internal/masterdata/shared"
	internalShared "github.com/stockpile-wms/stockpile/internal/shared"
)

type memoryRepo struct {
	suppliers map[int64]Supplier
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{suppliers: make(map[int64]Supplier)}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	out := make([]Supplier, 0, len(r.suppliers))
	for _, s := range r.suppliers {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Supplier, error) {
	if s, ok := r.suppliers[id]; ok {
		return s, nil
	}
	return Supplier{}, internalShared.NotFoundError{Entity: "supplier", ID: id}
}

func (r *memoryRepo) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	r.nextID++
	supplier.ID = r.nextID
	r.suppliers[supplier.ID] = supplier
	return supplier, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, supplier Supplier) error {
	if _, ok := r.suppliers[id]; !ok {
		return internalShared.NotFoundError{Entity: "supplier", ID: id}
	}
	supplier.ID = id
	r.suppliers[id] = supplier
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.suppliers[id]; !ok {
		return internalShared.NotFoundError{Entity: "supplier", ID: id}
	}
	delete(r.suppliers, id)
	return nil
}

func (r *memoryRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := r.suppliers[id]
	return ok, nil
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Supplier{Name: "Acme"})
	var validation internalShared.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "code", validation.Field)

	_, err = svc.Create(ctx, Supplier{Code: "SUP-1"})
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "name", validation.Field)

	created, err := svc.Create(ctx, Supplier{Code: "SUP-1", Name: "Acme"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestServiceUpdateMissingSupplier(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	err := svc.Update(context.Background(), 99, Supplier{Code: "SUP-1", Name: "Acme"})
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestSupplierExists(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, Supplier{Code: "SUP-1", Name: "Acme"})
	require.NoError(t, err)

	ok, err := svc.SupplierExists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.SupplierExists(ctx, created.ID+1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.SupplierExists(ctx, 0)
	require.NoError(t, err)
	require.False(t, ok)
}
