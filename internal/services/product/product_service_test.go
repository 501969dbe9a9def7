package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

func activeInput(title string) ProductInput {
	return ProductInput{
		Title:      title,
		Categories: []string{"sport"},
		Condition:  "good",
		AllowTrade: true,
		Status:     "active",
		Images: []RequestImage{
			{URL: "https://res.cloudinary.com/demo/image/upload/a.jpg"},
			{URL: "https://res.cloudinary.com/demo/image/upload/b.jpg"},
		},
	}
}

func TestProductInputPrepare(t *testing.T) {
	tests := []struct {
		name    string
		input   ProductInput
		wantErr bool
		check   func(t *testing.T, in ProductInput)
	}{
		{
			name:  "defaults to draft and new",
			input: ProductInput{Title: "  Лампа  ", Condition: "sparkling"},
			check: func(t *testing.T, in ProductInput) {
				assert.Equal(t, "Лампа", in.Title)
				assert.Equal(t, string(models.ProductStatusDraft), in.Status)
				assert.Equal(t, "new", in.Condition)
			},
		},
		{
			name:    "title required",
			input:   ProductInput{Title: "   "},
			wantErr: true,
		},
		{
			name:    "active needs categories",
			input:   ProductInput{Title: "Лампа", Status: "active", Images: []RequestImage{{URL: "https://x.io/a.jpg"}}},
			wantErr: true,
		},
		{
			name:    "active needs images",
			input:   ProductInput{Title: "Лампа", Status: "active", Categories: []string{"home"}},
			wantErr: true,
		},
		{
			name:    "negative price",
			input:   ProductInput{Title: "Лампа", Price: decimal.NewNullDecimal(decimal.NewFromInt(-1))},
			wantErr: true,
		},
		{
			name:    "image url must be valid",
			input:   ProductInput{Title: "Лампа", Images: []RequestImage{{URL: "not a url"}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			err := in.prepare()
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, in)
			}
		})
	}
}

func TestCreateProduct(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewProductService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	ctx := context.Background()

	p, err := svc.Create(ctx, owner.ID, activeInput("Велосипед"))
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusActive, p.Status)
	require.Len(t, p.Images, 2)
	assert.True(t, p.Images[0].IsMain, "первое изображение становится основным")
	assert.False(t, p.Images[1].IsMain)

	got, err := svc.Get(ctx, uuid.New(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Велосипед", got.Title)
	assert.Equal(t, models.StringList{"sport"}, got.Categories)
	require.Len(t, got.Images, 2)
	require.NotNil(t, got.Owner)
	assert.Equal(t, owner.ID, got.Owner.ID)
}

func TestDraftVisibleOnlyToOwner(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewProductService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	ctx := context.Background()

	draft, err := svc.Create(ctx, owner.ID, ProductInput{Title: "Черновик"})
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusDraft, draft.Status)

	_, err = svc.Get(ctx, uuid.New(), draft.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Get(ctx, owner.ID, draft.ID)
	assert.NoError(t, err)

	public, total, err := svc.ListPublic(ctx, db.ProductFilter{Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, public)

	mine, total, err := svc.ListMine(ctx, owner.ID, "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, mine, 1)
}

func TestListPublicFilters(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewProductService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	ctx := context.Background()

	_, err := svc.Create(ctx, owner.ID, activeInput("Горный велосипед"))
	require.NoError(t, err)
	books := activeInput("Собрание сочинений")
	books.Categories = []string{"books"}
	_, err = svc.Create(ctx, owner.ID, books)
	require.NoError(t, err)

	byCategory, total, err := svc.ListPublic(ctx, db.ProductFilter{Category: "books", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Собрание сочинений", byCategory[0].Title)
	require.NotNil(t, byCategory[0].Owner)

	bySearch, total, err := svc.ListPublic(ctx, db.ProductFilter{Search: "велосипед", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Горный велосипед", bySearch[0].Title)
}

func TestUpdateAndArchiveProduct(t *testing.T) {
	database := testutil.NewDB(t)
	svc := NewProductService(config.NewTestConfig(), database)
	owner := testutil.SeedUser(t, database, "owner")
	other := testutil.SeedUser(t, database, "other")
	ctx := context.Background()

	p, err := svc.Create(ctx, owner.ID, activeInput("Гитара"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, other.ID, p.ID, activeInput("Чужая гитара"))
	require.ErrorIs(t, err, models.ErrForbidden)

	in := activeInput("Гитара акустическая")
	in.Images = []RequestImage{{URL: "https://res.cloudinary.com/demo/image/upload/c.jpg", IsMain: true}}
	updated, err := svc.Update(ctx, owner.ID, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Гитара акустическая", updated.Title)

	stored, err := db.GetProduct(ctx, database, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Images, 1)
	assert.True(t, stored.Images[0].IsMain)

	require.ErrorIs(t, svc.Archive(ctx, other.ID, p.ID), models.ErrForbidden)
	require.NoError(t, svc.Archive(ctx, owner.ID, p.ID))

	_, err = svc.Update(ctx, owner.ID, p.ID, activeInput("Снова"))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	traded := testutil.SeedProduct(t, database, owner.ID, "Обменянный")
	require.NoError(t, db.SetProductStatus(ctx, database, models.ProductStatusTraded, traded.CreatedAt, traded.ID))
	assert.ErrorIs(t, svc.Archive(ctx, owner.ID, traded.ID), models.ErrInvalidTransition)
}
