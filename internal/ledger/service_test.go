package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

type memoryState struct {
	movements  map[int64]Movement
	deleted    map[int64]bool
	lines      map[int64][]MovementLine
	stock      map[int64]StockRecord
	cards      []BinCardEntry
	audits     []shared.AuditLog
	nextMoveID int64
	nextLineID int64
	nextCardID int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		movements: make(map[int64]Movement),
		deleted:   make(map[int64]bool),
		lines:     make(map[int64][]MovementLine),
		stock:     make(map[int64]StockRecord),
	}
}

func (s *memoryState) clone() *memoryState {
	next := newMemoryState()
	for id, m := range s.movements {
		next.movements[id] = m
	}
	for id, d := range s.deleted {
		next.deleted[id] = d
	}
	for id, ls := range s.lines {
		copied := make([]MovementLine, len(ls))
		copy(copied, ls)
		next.lines[id] = copied
	}
	for id, rec := range s.stock {
		next.stock[id] = rec
	}
	next.cards = append(next.cards, s.cards...)
	next.audits = append(next.audits, s.audits...)
	next.nextMoveID = s.nextMoveID
	next.nextLineID = s.nextLineID
	next.nextCardID = s.nextCardID
	return next
}

// memoryRepo serialises whole transactions behind one mutex, which is a
// strictly stronger guarantee than the per-row lock the real repository
// takes; anything that is atomic here must also hold under row locks.
type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{state: r.state}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetMovement(ctx context.Context, id int64) (Movement, []MovementLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: r.state}).GetMovementForUpdate(ctx, id)
}

func (r *memoryRepo) balance(variationID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.stock[variationID].QuantityAvailable
}

func (r *memoryRepo) cardEntries(variationID int64) []BinCardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []BinCardEntry
	for _, entry := range r.state.cards {
		if entry.VariationID == variationID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (r *memoryRepo) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, 0, len(r.state.audits))
	for _, a := range r.state.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.state.nextMoveID++
	m.ID = tx.state.nextMoveID
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	tx.state.movements[m.ID] = m
	return m.ID, nil
}

func (tx *memoryTx) UpdateMovementHeader(ctx context.Context, m Movement) error {
	if _, ok := tx.state.movements[m.ID]; !ok || tx.state.deleted[m.ID] {
		return shared.NotFoundError{Entity: "movement", ID: m.ID}
	}
	tx.state.movements[m.ID] = m
	return nil
}

func (tx *memoryTx) SoftDeleteMovement(ctx context.Context, id int64) error {
	if _, ok := tx.state.movements[id]; !ok || tx.state.deleted[id] {
		return shared.NotFoundError{Entity: "movement", ID: id}
	}
	tx.state.deleted[id] = true
	return nil
}

func (tx *memoryTx) GetMovementForUpdate(ctx context.Context, id int64) (Movement, []MovementLine, error) {
	m, ok := tx.state.movements[id]
	if !ok || tx.state.deleted[id] {
		return Movement{}, nil, shared.NotFoundError{Entity: "movement", ID: id}
	}
	lines := make([]MovementLine, len(tx.state.lines[id]))
	copy(lines, tx.state.lines[id])
	return m, lines, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, movementID int64, lines []MovementLine) ([]MovementLine, error) {
	inserted := make([]MovementLine, 0, len(lines))
	for _, line := range lines {
		tx.state.nextLineID++
		line.ID = tx.state.nextLineID
		line.MovementID = movementID
		inserted = append(inserted, line)
	}
	tx.state.lines[movementID] = append(tx.state.lines[movementID], inserted...)
	return inserted, nil
}

func (tx *memoryTx) DeleteLines(ctx context.Context, movementID int64) error {
	delete(tx.state.lines, movementID)
	return nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, variationID int64) (StockRecord, error) {
	if rec, ok := tx.state.stock[variationID]; ok {
		return rec, nil
	}
	return StockRecord{VariationID: variationID}, ErrStockNotFound
}

func (tx *memoryTx) UpsertStock(ctx context.Context, rec StockRecord) error {
	tx.state.stock[rec.VariationID] = rec
	return nil
}

func (tx *memoryTx) AppendCardEntry(ctx context.Context, entry BinCardEntry) (BinCardEntry, error) {
	tx.state.nextCardID++
	entry.ID = tx.state.nextCardID
	tx.state.cards = append(tx.state.cards, entry)
	return entry, nil
}

func (tx *memoryTx) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	tx.state.audits = append(tx.state.audits, log)
	return nil
}

type staticDirs struct {
	variations map[int64]bool
	suppliers  map[int64]bool
}

func (d staticDirs) VariationsExist(ctx context.Context, ids []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(ids))
	for _, id := range ids {
		result[id] = d.variations[id]
	}
	return result, nil
}

func (d staticDirs) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return d.suppliers[id], nil
}

func newTestService(repo *memoryRepo) *Service {
	dirs := staticDirs{
		variations: map[int64]bool{1: true, 2: true, 3: true},
		suppliers:  map[int64]bool{10: true},
	}
	return NewService(repo, NewValidator(dirs, dirs), nil)
}

func grnInput(variationID, qty int64) CreateMovementInput {
	return CreateMovementInput{
		SupplierID: 10,
		ActorID:    7,
		Lines:      []LineInput{{VariationID: variationID, Quantity: qty, UnitCost: decimal.NewFromInt(5)}},
	}
}

func ginInput(variationID, qty int64) CreateMovementInput {
	return CreateMovementInput{
		IssuedTo: "maintenance",
		ActorID:  7,
		Lines:    []LineInput{{VariationID: variationID, Quantity: qty, UnitCost: decimal.NewFromInt(5)}},
	}
}

func TestCreateGRNIncreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)
	require.Equal(t, MovementGRN, result.Header.Type)
	require.Equal(t, StatusPosted, result.Header.Status)
	require.NotEmpty(t, result.Header.RefNo)
	require.Equal(t, int64(100), result.Balances[1])
	require.Equal(t, "500", result.Lines[0].Subtotal.String())

	require.Equal(t, int64(100), repo.balance(1))
	entries := repo.cardEntries(1)
	require.Len(t, entries, 1)
	require.Equal(t, int64(100), entries[0].QuantityIn)
	require.Equal(t, int64(0), entries[0].QuantityOut)
	require.Equal(t, int64(100), entries[0].Balance)
	require.Equal(t, []string{shared.AuditActionCreate}, repo.auditActions())
}

func TestCreateGINDecreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)

	result, err := svc.CreateGIN(ctx, ginInput(1, 30))
	require.NoError(t, err)
	require.Equal(t, int64(70), result.Balances[1])

	entries := repo.cardEntries(1)
	require.Len(t, entries, 2)
	require.Equal(t, int64(30), entries[1].QuantityOut)
	require.Equal(t, int64(70), entries[1].Balance)
}

func TestCreateGINInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)
	_, err = svc.CreateGIN(ctx, ginInput(1, 30))
	require.NoError(t, err)

	_, err = svc.CreateGIN(ctx, ginInput(1, 1000))
	require.Error(t, err)
	var insufficient shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(1000), insufficient.Requested)
	require.Equal(t, int64(70), insufficient.Available)

	// Nothing from the failed issue may stick.
	require.Equal(t, int64(70), repo.balance(1))
	require.Len(t, repo.cardEntries(1), 2)
}

func TestCreateGINIsAtomicAcrossLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGRN(ctx, grnInput(1, 50))
	require.NoError(t, err)

	_, err = svc.CreateGIN(ctx, CreateMovementInput{
		IssuedTo: "line-atomicity",
		ActorID:  7,
		Lines: []LineInput{
			{VariationID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(5)},
			{VariationID: 1, Quantity: 20, UnitCost: decimal.NewFromInt(5)},
			{VariationID: 2, Quantity: 5, UnitCost: decimal.NewFromInt(5)},
		},
	})
	var insufficient shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(2), insufficient.VariationID)

	// Earlier lines of the failed movement are rolled back with it.
	require.Equal(t, int64(50), repo.balance(1))
	require.Len(t, repo.cardEntries(1), 1)
	require.Equal(t, int64(0), repo.balance(2))
}

func TestConcurrentIssuesNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)

	var succeeded, failed sync.Map
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.CreateGIN(gctx, ginInput(1, 10))
			if err != nil {
				var insufficient shared.InsufficientStockError
				if !errors.As(err, &insufficient) {
					return err
				}
				failed.Store(i, true)
				return nil
			}
			succeeded.Store(i, true)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 10, mapLen(&succeeded))
	require.Equal(t, 10, mapLen(&failed))
	require.Equal(t, int64(0), repo.balance(1))

	// Full replay of the bin card reproduces the final balance.
	var replayed int64
	for _, entry := range repo.cardEntries(1) {
		replayed += entry.QuantityIn - entry.QuantityOut
	}
	require.Equal(t, int64(0), replayed)
}

func TestDeleteGRNAppendsReversal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMovement(ctx, result.Header.ID, 7))
	require.Equal(t, int64(0), repo.balance(1))

	entries := repo.cardEntries(1)
	require.Len(t, entries, 2)
	require.Equal(t, int64(100), entries[1].QuantityOut)
	require.Equal(t, int64(0), entries[1].Balance)
	require.Contains(t, entries[1].Remarks, result.Header.RefNo)

	_, _, err = repo.GetMovement(ctx, result.Header.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteGRNFailsWhenGoodsAlreadyIssued(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	grn, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)
	_, err = svc.CreateGIN(ctx, ginInput(1, 40))
	require.NoError(t, err)

	err = svc.DeleteMovement(ctx, grn.Header.ID, 7)
	var insufficient shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The delete rolled back entirely.
	require.Equal(t, int64(60), repo.balance(1))
	_, _, err = repo.GetMovement(ctx, grn.Header.ID)
	require.NoError(t, err)
}

func TestDeleteGINRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)
	gin, err := svc.CreateGIN(ctx, ginInput(1, 40))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMovement(ctx, gin.Header.ID, 7))
	require.Equal(t, int64(100), repo.balance(1))
}

func TestReturnWorkflow(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.CreateReturn(ctx, grnInput(1, 5))
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Header.Status)
	require.Empty(t, result.Entries)
	require.Equal(t, int64(0), repo.balance(1))

	updated, err := svc.TransitionReturn(ctx, result.Header.ID, StatusApproved, 7)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)

	_, err = svc.TransitionReturn(ctx, result.Header.ID, StatusPending, 7)
	var conflict shared.ConflictError
	require.ErrorAs(t, err, &conflict)

	updated, err = svc.TransitionReturn(ctx, result.Header.ID, StatusCompleted, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
}

func TestUpdateReturnReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.CreateReturn(ctx, grnInput(1, 5))
	require.NoError(t, err)

	_, err = svc.UpdateMovement(ctx, result.Header.ID, UpdateMovementInput{
		ActorID: 7,
		Lines:   []LineInput{{VariationID: 2, Quantity: 3, UnitCost: decimal.NewFromInt(9)}},
	})
	require.NoError(t, err)

	_, lines, err := repo.GetMovement(ctx, result.Header.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, int64(2), lines[0].VariationID)
	require.Equal(t, int64(3), lines[0].Quantity)
}

func TestUpdateRejectsLineEditsOnPostedMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.CreateGRN(ctx, grnInput(1, 100))
	require.NoError(t, err)

	_, err = svc.UpdateMovement(ctx, result.Header.ID, UpdateMovementInput{
		ActorID: 7,
		Lines:   []LineInput{{VariationID: 1, Quantity: 1, UnitCost: decimal.NewFromInt(1)}},
	})
	var conflict shared.ConflictError
	require.ErrorAs(t, err, &conflict)

	reason := "recount"
	updated, err := svc.UpdateMovement(ctx, result.Header.ID, UpdateMovementInput{ActorID: 7, Reason: &reason})
	require.NoError(t, err)
	require.Equal(t, "recount", updated.Reason)
}

func mapLen(m *sync.Map) int {
	count := 0
	m.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
