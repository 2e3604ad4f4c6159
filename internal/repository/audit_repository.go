package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/dicom-store-gateway/internal/database"
	"github.com/otcheredev/dicom-store-gateway/internal/models"
)

// AuditRepository persists one AuditLog row per DIMSE exchange.
type AuditRepository struct{}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if err := database.DB.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListRecent returns the most recent audit entries, newest first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := database.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}

// GetByStudyUID retrieves audit entries for one study.
func (r *AuditRepository) GetByStudyUID(ctx context.Context, studyUID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	if err := database.DB.WithContext(ctx).
		Where("study_uid = ?", studyUID).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}

// RecordCStore implements pkg/receiver's AuditRecorder interface.
func (r *AuditRepository) RecordCStore(ctx context.Context, studyUID, sopInstanceUID string, status uint16, duration time.Duration, errMsg string) {
	entry := &models.AuditLog{
		Action:         "c-store",
		StudyUID:       studyUID,
		SOPInstanceUID: sopInstanceUID,
		DimseStatus:    status,
		Duration:       duration.Milliseconds(),
		ErrorMessage:   errMsg,
	}
	if errMsg != "" {
		entry.Status = "failure"
	} else {
		entry.Status = "success"
	}
	_ = r.Create(ctx, entry)
}
