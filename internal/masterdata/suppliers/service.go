package suppliers

import (
	"context"
	"strconv"
	"strings"

	"github.com/stockpile-wms/stockpile/internal/masterdata/shared"
	internalShared "github.com/stockpile-wms/stockpile/internal/shared"
)

type Service struct {
	repo  Repository
	audit *internalShared.AuditLogger
}

func NewService(repo Repository, audit *internalShared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	created, err := s.repo.Create(ctx, supplier)
	if err != nil {
		return Supplier{}, err
	}
	s.record(ctx, internalShared.AuditActionCreate, created.ID, nil, created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	if err := s.validate(supplier); err != nil {
		return err
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, supplier); err != nil {
		return err
	}
	supplier.ID = id
	s.record(ctx, internalShared.AuditActionUpdate, id, old, supplier)
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, internalShared.AuditActionDelete, id, old, nil)
	return nil
}

// SupplierExists satisfies the ledger's counterparty directory port.
func (s *Service) SupplierExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

// Master data audit is best effort; failing to log never fails the write.
func (s *Service) record(ctx context.Context, action string, id int64, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  internalShared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "supplier",
		EntityID: strconv.FormatInt(id, 10),
		OldValue: oldValue,
		NewValue: newValue,
	})
}

func (s *Service) validate(sup Supplier) error {
	if strings.TrimSpace(sup.Code) == "" {
		return internalShared.ValidationError{Field: "code", Reason: "required"}
	}
	if strings.TrimSpace(sup.Name) == "" {
		return internalShared.ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}
