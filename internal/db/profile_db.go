package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const profileColumns = `id, telegram_id, username, first_name, last_name, avatar_url, bio, location,
	role, kyc_verified, created_at, updated_at, last_login_at`

// UpsertTelegramProfile создает профиль пользователя Telegram или обновляет
// данные существующего и время последнего входа
func UpsertTelegramProfile(ctx context.Context, q sqlx.ExtContext, p models.Profile, now time.Time) (*models.Profile, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	now = now.UTC()

	_, err := exec(ctx, q, `
		INSERT INTO profiles (id, telegram_id, username, first_name, last_name, avatar_url,
			role, kyc_verified, created_at, updated_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			avatar_url = excluded.avatar_url,
			role = excluded.role,
			updated_at = excluded.updated_at,
			last_login_at = excluded.last_login_at`,
		p.ID, p.TelegramID, p.Username, p.FirstName, p.LastName, p.AvatarURL,
		p.Role, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка при сохранении профиля: %w", err)
	}

	return GetProfileByTelegramID(ctx, q, p.TelegramID)
}

// GetProfile возвращает профиль по ID
func GetProfile(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := get(ctx, q, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByTelegramID возвращает профиль по Telegram ID
func GetProfileByTelegramID(ctx context.Context, q sqlx.ExtContext, telegramID int64) (*models.Profile, error) {
	var p models.Profile
	if err := get(ctx, q, &p, `SELECT `+profileColumns+` FROM profiles WHERE telegram_id = ?`, telegramID); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUserBriefs возвращает краткие данные пользователей по списку ID
func GetUserBriefs(ctx context.Context, q sqlx.ExtContext, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	out := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+profileColumns+` FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	if err := selectAll(ctx, q, &profiles, query, args...); err != nil {
		return nil, err
	}
	for i := range profiles {
		out[profiles[i].ID] = profiles[i].Brief()
	}
	return out, nil
}

// UpdateProfile обновляет редактируемые поля профиля
func UpdateProfile(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, bio, location string, now time.Time) error {
	n, err := exec(ctx, q, `UPDATE profiles SET bio = ?, location = ?, updated_at = ? WHERE id = ?`,
		bio, location, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении профиля: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetKYCVerified отмечает профиль как прошедший проверку личности
func SetKYCVerified(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, verified bool, now time.Time) error {
	n, err := exec(ctx, q, `UPDATE profiles SET kyc_verified = ?, updated_at = ? WHERE id = ?`, verified, now.UTC(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
