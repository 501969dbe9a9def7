package models

import (
	"time"

	"github.com/google/uuid"
)

// KYCStatus определяет статус проверки личности
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// ValidDocumentTypes содержит допустимые типы документов
var ValidDocumentTypes = map[string]bool{
	"passport":       true,
	"id_card":        true,
	"driver_license": true,
}

// KYCVerification представляет заявку на проверку личности
type KYCVerification struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	DocumentType    string     `db:"document_type" json:"document_type"`
	DocumentNumber  string     `db:"document_number" json:"-"`
	FrontImageURL   string     `db:"front_image_url" json:"front_image_url"`
	BackImageURL    string     `db:"back_image_url" json:"back_image_url,omitempty"`
	SelfieURL       string     `db:"selfie_url" json:"selfie_url,omitempty"`
	Status          KYCStatus  `db:"status" json:"status"`
	RejectionReason string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	Version         int64      `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NextKYCStatus проверяет решение модератора по заявке
func NextKYCStatus(from KYCStatus, decision KYCStatus) (KYCStatus, error) {
	if from == KYCStatusPending && (decision == KYCStatusApproved || decision == KYCStatusRejected) {
		return decision, nil
	}
	return from, &TransitionError{Entity: "kyc verification", From: string(from), Action: string(decision)}
}
