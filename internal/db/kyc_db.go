package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const kycColumns = `id, user_id, document_type, document_number, front_image_url, back_image_url, selfie_url,
	status, rejection_reason, reviewed_by, reviewed_at, version, created_at, updated_at`

// InsertKYCVerification сохраняет заявку на проверку. Если у пользователя
// уже есть заявка на рассмотрении или одобренная, возвращает ErrConflict.
func InsertKYCVerification(ctx context.Context, q sqlx.ExtContext, k *models.KYCVerification) error {
	n, err := exec(ctx, q, `
		INSERT INTO kyc_verifications (`+kycColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		k.ID, k.UserID, k.DocumentType, k.DocumentNumber, k.FrontImageURL, k.BackImageURL, k.SelfieURL,
		k.Status, k.RejectionReason, k.ReviewedBy, k.ReviewedAt, k.Version, k.CreatedAt.UTC(), k.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения заявки KYC: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("active verification already exists: %w", models.ErrConflict)
	}
	return nil
}

// GetKYCVerification возвращает заявку по ID
func GetKYCVerification(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.KYCVerification, error) {
	var k models.KYCVerification
	if err := get(ctx, q, &k, `SELECT `+kycColumns+` FROM kyc_verifications WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &k, nil
}

// GetLatestKYCVerification возвращает последнюю заявку пользователя
func GetLatestKYCVerification(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.KYCVerification, error) {
	var k models.KYCVerification
	err := get(ctx, q, &k, `
		SELECT `+kycColumns+` FROM kyc_verifications
		WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CountActiveKYCVerifications считает заявки пользователя в статусах pending и approved
func CountActiveKYCVerifications(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error) {
	var count int
	err := get(ctx, q, &count, `
		SELECT COUNT(*) FROM kyc_verifications
		WHERE user_id = ? AND status IN ('pending', 'approved')`, userID)
	return count, err
}

// ListKYCVerificationsByStatus возвращает заявки для модерации
func ListKYCVerificationsByStatus(ctx context.Context, q sqlx.ExtContext, status models.KYCStatus, limit, offset int) ([]models.KYCVerification, error) {
	out := []models.KYCVerification{}
	err := selectAll(ctx, q, &out, `
		SELECT `+kycColumns+` FROM kyc_verifications
		WHERE status = ? ORDER BY created_at LIMIT ? OFFSET ?`, status, limit, offset)
	return out, err
}

// UpdateKYCStatus применяет решение модератора с проверкой версии
func UpdateKYCStatus(ctx context.Context, q sqlx.ExtContext, k *models.KYCVerification, to models.KYCStatus, reviewer uuid.UUID, reason string, now time.Time) error {
	now = now.UTC()
	return execCAS(ctx, q, `
		UPDATE kyc_verifications SET
			status = ?, rejection_reason = ?, reviewed_by = ?, reviewed_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?`,
		to, reason, reviewer, now, now, k.ID, k.Status, k.Version)
}
