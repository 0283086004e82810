package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"evcharge/internal/cache"
	apperrors "evcharge/internal/errors"
	"evcharge/internal/model"
)

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *cache.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func copyOf(c *model.Charger) *model.Charger {
	cp := *c
	return &cp
}

func TestChargerService_Get_CachedRow(t *testing.T) {
	mr, c := newRedisCache(t)
	existing := chargerOwnedBy(alice)
	mockRepo := new(MockChargerRepository)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(copyOf(existing), nil).Once()
	svc := NewChargerService(mockRepo, c)
	ctx := context.Background()

	_, err := svc.Get(ctx, alice, existing.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists("charger:"+existing.ID.String()))

	var stored map[string]interface{}
	raw, err := mr.Get("charger:" + existing.ID.String())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, alice.ID.String(), stored["ownerId"])
	assert.Equal(t, float64(22), stored["powerOutput"])

	t.Run("ownership is checked on the cached row", func(t *testing.T) {
		_, err := svc.Get(ctx, bob, existing.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("owner survives the round trip", func(t *testing.T) {
		got, err := svc.Get(ctx, alice, existing.ID)
		require.NoError(t, err)
		require.NotNil(t, got.OwnerID)
		assert.Equal(t, alice.ID, *got.OwnerID)
		assert.True(t, existing.PowerOutput.Equal(got.PowerOutput))
	})

	t.Run("admin reads the cached row", func(t *testing.T) {
		got, err := svc.Get(ctx, admin, existing.ID)
		require.NoError(t, err)
		assert.Equal(t, existing.Name, got.Name)
	})

	// Every read after the first was served from redis.
	mockRepo.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestChargerService_Update_InvalidatesCachedRow(t *testing.T) {
	mr, c := newRedisCache(t)
	existing := chargerOwnedBy(alice)
	renamed := "Renamed"
	updated := copyOf(existing)
	updated.Name = renamed

	mockRepo := new(MockChargerRepository)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(copyOf(existing), nil).Once()
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(copyOf(existing), nil).Once()
	mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*model.Charger")).Return(nil)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(updated, nil).Once()
	svc := NewChargerService(mockRepo, c)
	ctx := context.Background()

	first, err := svc.Get(ctx, alice, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Depot", first.Name)

	_, err = svc.Update(ctx, alice, existing.ID, ChargerPatch{Name: &renamed})
	require.NoError(t, err)
	assert.False(t, mr.Exists("charger:"+existing.ID.String()))

	got, err := svc.Get(ctx, alice, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed, got.Name)
	mockRepo.AssertExpectations(t)
}

func TestChargerService_Delete_InvalidatesCachedRow(t *testing.T) {
	mr, c := newRedisCache(t)
	existing := chargerOwnedBy(alice)

	mockRepo := new(MockChargerRepository)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(copyOf(existing), nil).Twice()
	mockRepo.On("Delete", mock.Anything, existing.ID).Return(nil)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(nil, gorm.ErrRecordNotFound).Once()
	svc := NewChargerService(mockRepo, c)
	ctx := context.Background()

	_, err := svc.Get(ctx, alice, existing.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, alice, existing.ID))
	assert.False(t, mr.Exists("charger:"+existing.ID.String()))

	_, err = svc.Get(ctx, alice, existing.ID)
	assert.ErrorIs(t, err, apperrors.ErrChargerNotFound)
	mockRepo.AssertExpectations(t)
}

func TestChargerService_Get_IgnoresCorruptCacheEntry(t *testing.T) {
	mr, c := newRedisCache(t)
	existing := chargerOwnedBy(alice)
	require.NoError(t, mr.Set("charger:"+existing.ID.String(), "{not json"))

	mockRepo := new(MockChargerRepository)
	mockRepo.On("FindByID", mock.Anything, existing.ID).Return(copyOf(existing), nil).Once()

	got, err := NewChargerService(mockRepo, c).Get(context.Background(), alice, existing.ID)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	mockRepo.AssertExpectations(t)
}
