package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otcheredev/dicom-store-gateway/internal/database"
	"github.com/otcheredev/dicom-store-gateway/internal/models"
)

// PeerRepository handles PeerConfig CRUD, adapted from the teacher's
// PACSRepository with SetPrimary dropped (a DIMSE peer has no
// "primary" concept) and UpdateConnectionStatus repointed at the last
// association outcome.
type PeerRepository struct{}

func NewPeerRepository() *PeerRepository {
	return &PeerRepository{}
}

func (r *PeerRepository) Create(ctx context.Context, peer *models.PeerConfig) error {
	if err := database.DB.WithContext(ctx).Create(peer).Error; err != nil {
		return fmt.Errorf("failed to create peer config: %w", err)
	}
	return nil
}

func (r *PeerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PeerConfig, error) {
	var peer models.PeerConfig
	if err := database.DB.WithContext(ctx).First(&peer, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer config: %w", err)
	}
	return &peer, nil
}

func (r *PeerRepository) GetByName(ctx context.Context, name string) (*models.PeerConfig, error) {
	var peer models.PeerConfig
	if err := database.DB.WithContext(ctx).First(&peer, "name = ?", name).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer config: %w", err)
	}
	return &peer, nil
}

func (r *PeerRepository) GetByAETitle(ctx context.Context, aeTitle string) (*models.PeerConfig, error) {
	var peer models.PeerConfig
	if err := database.DB.WithContext(ctx).First(&peer, "ae_title = ? AND is_active = true", aeTitle).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer config: %w", err)
	}
	return &peer, nil
}

func (r *PeerRepository) List(ctx context.Context) ([]models.PeerConfig, error) {
	var peers []models.PeerConfig
	if err := database.DB.WithContext(ctx).Order("name").Find(&peers).Error; err != nil {
		return nil, fmt.Errorf("failed to list peer configs: %w", err)
	}
	return peers, nil
}

func (r *PeerRepository) UpdateAssociationStatus(ctx context.Context, id uuid.UUID, status string) error {
	now := time.Now()
	if err := database.DB.WithContext(ctx).Model(&models.PeerConfig{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_association_at":     now,
		"last_association_status": status,
	}).Error; err != nil {
		return fmt.Errorf("failed to update association status: %w", err)
	}
	return nil
}

func (r *PeerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := database.DB.WithContext(ctx).Delete(&models.PeerConfig{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete peer config: %w", err)
	}
	return nil
}
