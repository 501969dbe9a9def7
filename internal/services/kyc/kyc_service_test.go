package kyc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

var passport = SubmitInput{
	DocumentType:   "Passport",
	DocumentNumber: " 4510 123456 ",
	FrontImageURL:  "https://res.cloudinary.com/demo/image/upload/front.jpg",
	SelfieURL:      "https://res.cloudinary.com/demo/image/upload/selfie.jpg",
}

func newService(t *testing.T) (*KYCService, *db.DB) {
	t.Helper()
	database := testutil.NewDB(t)
	svc := NewKYCService(config.NewTestConfig(), database, &testutil.Waker{})

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc, database
}

func TestSubmitVerification(t *testing.T) {
	svc, database := newService(t)
	user := testutil.SeedUser(t, database, "alice")
	ctx := context.Background()

	mine, err := svc.GetMine(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, mine)

	k, err := svc.Submit(ctx, user.ID, passport)
	require.NoError(t, err)
	assert.Equal(t, "passport", k.DocumentType)
	assert.Equal(t, "4510 123456", k.DocumentNumber)
	assert.Equal(t, models.KYCStatusPending, k.Status)

	_, err = svc.Submit(ctx, user.ID, passport)
	assert.ErrorIs(t, err, models.ErrConflict, "вторая заявка при заявке на рассмотрении")

	pending, err := svc.ListPending(ctx, 20, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, k.ID, pending[0].ID)
}

func TestSubmitVerificationValidation(t *testing.T) {
	svc, database := newService(t)
	user := testutil.SeedUser(t, database, "alice")
	ctx := context.Background()

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{"unknown document", SubmitInput{DocumentType: "library_card", DocumentNumber: "1", FrontImageURL: passport.FrontImageURL}},
		{"missing number", SubmitInput{DocumentType: "passport", FrontImageURL: passport.FrontImageURL}},
		{"front image not a url", SubmitInput{DocumentType: "passport", DocumentNumber: "1", FrontImageURL: "front.jpg"}},
		{"bad selfie url", SubmitInput{DocumentType: "id_card", DocumentNumber: "1", FrontImageURL: passport.FrontImageURL, SelfieURL: "selfie"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, user.ID, tt.input)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestReviewApprove(t *testing.T) {
	svc, database := newService(t)
	user := testutil.SeedUser(t, database, "alice")
	admin := testutil.SeedProfile(t, database, "moderator", models.RoleAdmin)
	ctx := context.Background()

	k, err := svc.Submit(ctx, user.ID, passport)
	require.NoError(t, err)

	_, err = svc.Review(ctx, models.Actor{ID: user.ID, Role: models.RoleUser}, k.ID, models.KYCStatusApproved, "")
	require.ErrorIs(t, err, models.ErrForbidden)

	approved, err := svc.Review(ctx, models.Actor{ID: admin.ID, Role: models.RoleAdmin}, k.ID, models.KYCStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, admin.ID, *approved.ReviewedBy)

	profile, err := db.GetProfile(ctx, database, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.KYCVerified)

	events := testutil.EventsOfType(testutil.OutboxEvents(t, database), models.NotificationKYCApproved)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID, events[0].RecipientID)

	_, err = svc.Review(ctx, models.Actor{ID: admin.ID, Role: models.RoleAdmin}, k.ID, models.KYCStatusRejected, "передумал")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = svc.Submit(ctx, user.ID, passport)
	assert.ErrorIs(t, err, models.ErrConflict, "после одобрения новая заявка не нужна")
}

func TestReviewRejectAllowsResubmission(t *testing.T) {
	svc, database := newService(t)
	user := testutil.SeedUser(t, database, "alice")
	admin := models.Actor{ID: testutil.SeedProfile(t, database, "moderator", models.RoleAdmin).ID, Role: models.RoleAdmin}
	ctx := context.Background()

	k, err := svc.Submit(ctx, user.ID, passport)
	require.NoError(t, err)

	_, err = svc.Review(ctx, admin, k.ID, models.KYCStatusRejected, "   ")
	require.ErrorIs(t, err, models.ErrValidation)

	rejected, err := svc.Review(ctx, admin, k.ID, models.KYCStatusRejected, "Фото размыто")
	require.NoError(t, err)
	assert.Equal(t, "Фото размыто", rejected.RejectionReason)

	events := testutil.EventsOfType(testutil.OutboxEvents(t, database), models.NotificationKYCRejected)
	require.Len(t, events, 1)

	profile, err := db.GetProfile(ctx, database, user.ID)
	require.NoError(t, err)
	assert.False(t, profile.KYCVerified)

	again, err := svc.Submit(ctx, user.ID, passport)
	require.NoError(t, err)

	mine, err := svc.GetMine(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, again.ID, mine.ID)
	assert.Equal(t, models.KYCStatusPending, mine.Status)
}
