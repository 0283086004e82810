package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"evcharge/internal/auth"
	"evcharge/internal/cache"
	apperrors "evcharge/internal/errors"
	"evcharge/internal/model"
	"evcharge/internal/repository"
)

const chargerCacheTTL = 5 * time.Minute

// ChargerInput carries the fields of a new charger.
type ChargerInput struct {
	Name          string
	Latitude      float64
	Longitude     float64
	Status        model.ChargerStatus
	PowerOutput   decimal.Decimal
	ConnectorType string
}

// ChargerPatch carries the fields to change on an existing charger; nil
// fields are left untouched. Ownership cannot be patched.
type ChargerPatch struct {
	Name          *string
	Latitude      *float64
	Longitude     *float64
	Status        *model.ChargerStatus
	PowerOutput   *decimal.Decimal
	ConnectorType *string
}

// ChargerService handles charger operations on behalf of a principal.
type ChargerService interface {
	List(ctx context.Context, p auth.Principal) ([]model.Charger, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Charger, error)
	Create(ctx context.Context, p auth.Principal, in ChargerInput) (*model.Charger, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, patch ChargerPatch) (*model.Charger, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
}

type chargerService struct {
	repo  repository.ChargerRepository
	cache *cache.Client
}

// NewChargerService creates a new charger service.
func NewChargerService(repo repository.ChargerRepository, cache *cache.Client) ChargerService {
	return &chargerService{
		repo:  repo,
		cache: cache,
	}
}

func (s *chargerService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("charger:%s", id.String())
}

// List returns every charger for admins and only owned chargers otherwise.
func (s *chargerService) List(ctx context.Context, p auth.Principal) ([]model.Charger, error) {
	var (
		chargers []model.Charger
		err      error
	)
	if auth.IsAdmin(p) {
		chargers, err = s.repo.List(ctx)
	} else {
		chargers, err = s.repo.ListByOwner(ctx, p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list chargers: %w", err)
	}
	if chargers == nil {
		chargers = []model.Charger{}
	}
	return chargers, nil
}

// Get retrieves a charger by ID with caching.
func (s *chargerService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Charger, error) {
	charger, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccessResource(p, charger) {
		return nil, apperrors.ErrForbidden
	}
	return charger, nil
}

// Create stores a charger owned by p.
func (s *chargerService) Create(ctx context.Context, p auth.Principal, in ChargerInput) (*model.Charger, error) {
	owner := p.ID
	charger := &model.Charger{
		Name:          strings.TrimSpace(in.Name),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Status:        in.Status,
		PowerOutput:   in.PowerOutput.Round(model.PowerOutputScale),
		ConnectorType: strings.TrimSpace(in.ConnectorType),
		OwnerID:       &owner,
	}
	if charger.Status == "" {
		charger.Status = model.ChargerActive
	}
	if err := validateCharger(charger); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, charger); err != nil {
		return nil, fmt.Errorf("create charger: %w", err)
	}
	return charger, nil
}

// Update applies patch to a charger p may access.
func (s *chargerService) Update(ctx context.Context, p auth.Principal, id uuid.UUID, patch ChargerPatch) (*model.Charger, error) {
	charger, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccessResource(p, charger) {
		return nil, apperrors.ErrForbidden
	}

	applyPatch(charger, patch)
	if err := validateCharger(charger); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, charger); err != nil {
		return nil, fmt.Errorf("update charger: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return charger, nil
}

// Delete removes a charger p may access.
func (s *chargerService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	charger, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanAccessResource(p, charger) {
		return apperrors.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrChargerNotFound
		}
		return fmt.Errorf("delete charger: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return nil
}

// lookup reads through the cache.
func (s *chargerService) lookup(ctx context.Context, id uuid.UUID) (*model.Charger, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.Charger
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	charger, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(charger); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, chargerCacheTTL)
	}
	return charger, nil
}

// find always reads the store; writes must not start from a cached row.
func (s *chargerService) find(ctx context.Context, id uuid.UUID) (*model.Charger, error) {
	charger, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChargerNotFound
		}
		return nil, fmt.Errorf("get charger: %w", err)
	}
	return charger, nil
}

func applyPatch(c *model.Charger, patch ChargerPatch) {
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Latitude != nil {
		c.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		c.Longitude = *patch.Longitude
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.PowerOutput != nil {
		c.PowerOutput = patch.PowerOutput.Round(model.PowerOutputScale)
	}
	if patch.ConnectorType != nil {
		c.ConnectorType = strings.TrimSpace(*patch.ConnectorType)
	}
}

func validateCharger(c *model.Charger) error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	case c.Latitude < -90 || c.Latitude > 90:
		return fmt.Errorf("%w: latitude must be between -90 and 90", apperrors.ErrInvalidInput)
	case c.Longitude < -180 || c.Longitude > 180:
		return fmt.Errorf("%w: longitude must be between -180 and 180", apperrors.ErrInvalidInput)
	case !c.Status.Valid():
		return fmt.Errorf("%w: status must be active or inactive", apperrors.ErrInvalidInput)
	case c.PowerOutput.IsNegative():
		return fmt.Errorf("%w: powerOutput must not be negative", apperrors.ErrInvalidInput)
	case c.PowerOutput.GreaterThan(model.MaxPowerOutput):
		return fmt.Errorf("%w: powerOutput must be at most %s", apperrors.ErrInvalidInput, model.MaxPowerOutput)
	case c.ConnectorType == "":
		return fmt.Errorf("%w: connectorType is required", apperrors.ErrInvalidInput)
	}
	return nil
}
