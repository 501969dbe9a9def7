package favorite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

func TestFavorites(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewFavoriteService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	fan := testutil.SeedUser(t, database, "fan")
	product := testutil.SeedProduct(t, database, owner.ID, "Проигрыватель")
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, fan.ID, product.ID))
	// Повторное добавление ничего не меняет
	require.NoError(t, svc.Add(ctx, fan.ID, product.ID))

	ok, err := svc.IsFavorite(ctx, fan.ID, product.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	resp, err := svc.List(ctx, fan.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Favorites, 1)
	require.NotNil(t, resp.Favorites[0].Product)
	assert.Equal(t, "Проигрыватель", resp.Favorites[0].Product.Title)

	require.NoError(t, svc.Remove(ctx, fan.ID, product.ID))
	assert.ErrorIs(t, svc.Remove(ctx, fan.ID, product.ID), models.ErrNotFound)

	ok, err = svc.IsFavorite(ctx, fan.ID, product.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddFavoriteRequiresActiveProduct(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewFavoriteService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	fan := testutil.SeedUser(t, database, "fan")
	product := testutil.SeedProduct(t, database, owner.ID, "Снят с продажи")
	ctx := context.Background()

	require.NoError(t, db.SetProductStatus(ctx, database, models.ProductStatusArchived, time.Now(), product.ID))

	assert.ErrorIs(t, svc.Add(ctx, fan.ID, product.ID), models.ErrValidation)
	assert.ErrorIs(t, svc.Add(ctx, fan.ID, uuid.New()), models.ErrNotFound)
}
