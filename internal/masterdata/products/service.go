package products

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, internalShared.AuditActionCreate, "product", created.ID, nil, created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, product); err != nil {
		return err
	}
	product.ID = id
	s.record(ctx, internalShared.AuditActionUpdate, "product", id, old, product)
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
	s.record(ctx, internalShared.AuditActionDelete, "product", id, old, nil)
	return nil
}

func (s *Service) ListVariations(ctx context.Context, filters shared.ListFilters) ([]Variation, int, error) {
	return s.repo.ListVariations(ctx, filters)
}

func (s *Service) GetVariation(ctx context.Context, id int64) (Variation, error) {
	if id <= 0 {
		return Variation{}, internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	return s.repo.GetVariation(ctx, id)
}

func (s *Service) CreateVariation(ctx context.Context, v Variation) (Variation, error) {
	if err := validateVariation(v); err != nil {
		return Variation{}, err
	}
	if _, err := s.repo.Get(ctx, v.ProductID); err != nil {
		return Variation{}, err
	}
	created, err := s.repo.CreateVariation(ctx, v)
	if err != nil {
		return Variation{}, err
	}
	s.record(ctx, internalShared.AuditActionCreate, "variation", created.ID, nil, created)
	return created, nil
}

func (s *Service) UpdateVariation(ctx context.Context, id int64, v Variation) error {
	if id <= 0 {
		return internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	if err := validateVariation(v); err != nil {
		return err
	}
	old, err := s.repo.GetVariation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateVariation(ctx, id, v); err != nil {
		return err
	}
	v.ID = id
	s.record(ctx, internalShared.AuditActionUpdate, "variation", id, old, v)
	return nil
}

func (s *Service) DeleteVariation(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.ValidationError{Field: "id", Reason: "must be positive"}
	}
	old, err := s.repo.GetVariation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteVariation(ctx, id); err != nil {
		return err
	}
	s.record(ctx, internalShared.AuditActionDelete, "variation", id, old, nil)
	return nil
}

// VariationsExist satisfies the ledger's variation directory port.
func (s *Service) VariationsExist(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.repo.VariationsExist(ctx, ids)
}

// Master data audit is best effort; failing to log never fails the write.
func (s *Service) record(ctx context.Context, action, entity string, id int64, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  internalShared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		OldValue: oldValue,
		NewValue: newValue,
	})
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return internalShared.ValidationError{Field: "code", Reason: "required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return internalShared.ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}

func validateVariation(v Variation) error {
	if v.ProductID <= 0 {
		return internalShared.ValidationError{Field: "product_id", Reason: "required"}
	}
	if strings.TrimSpace(v.SKU) == "" {
		return internalShared.ValidationError{Field: "sku", Reason: "required"}
	}
	if strings.TrimSpace(v.Name) == "" {
		return internalShared.ValidationError{Field: "name", Reason: "required"}
	}
	if v.Price.IsNegative() {
		return internalShared.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}
