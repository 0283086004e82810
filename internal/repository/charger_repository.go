package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"evcharge/internal/model"
)

// ChargerRepository defines charger persistence operations.
type ChargerRepository interface {
	Create(ctx context.Context, charger *model.Charger) error
	Update(ctx context.Context, charger *model.Charger) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Charger, error)
	List(ctx context.Context) ([]model.Charger, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Charger, error)
}

type chargerRepository struct {
	db *gorm.DB
}

// NewChargerRepository creates a new charger repository.
func NewChargerRepository(db *gorm.DB) ChargerRepository {
	return &chargerRepository{db: db}
}

// Create creates a new charger.
func (r *chargerRepository) Create(ctx context.Context, charger *model.Charger) error {
	return r.db.WithContext(ctx).Create(charger).Error
}

// Update saves every column of an existing charger.
func (r *chargerRepository) Update(ctx context.Context, charger *model.Charger) error {
	return r.db.WithContext(ctx).Save(charger).Error
}

// Delete removes a charger by ID.
func (r *chargerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Charger{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID finds a charger by ID.
func (r *chargerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Charger, error) {
	var charger model.Charger
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&charger).Error; err != nil {
		return nil, err
	}
	return &charger, nil
}

// List returns every charger, newest first.
func (r *chargerRepository) List(ctx context.Context) ([]model.Charger, error) {
	var chargers []model.Charger
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&chargers).Error; err != nil {
		return nil, err
	}
	return chargers, nil
}

// ListByOwner returns the chargers owned by ownerID, newest first.
func (r *chargerRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Charger, error) {
	var chargers []model.Charger
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at desc").Find(&chargers).Error; err != nil {
		return nil, err
	}
	return chargers, nil
}
