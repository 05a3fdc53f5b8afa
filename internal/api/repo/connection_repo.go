package repo

import (
	"context"

	"autoflow"
	"autoflow/internal/api/models"

	"gorm.io/gorm"
)

type ConnectionRepository struct {
	Db *gorm.DB
}

func NewConnectionRepository() *ConnectionRepository {
	return &ConnectionRepository{Db: autoflow.DB}
}

func (slf *ConnectionRepository) FindByID(ctx context.Context, userID, id string) (models.Connection, error) {
	var conn models.Connection
	err := slf.Db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&conn).Error
	return conn, err
}

func (slf *ConnectionRepository) FindByUser(ctx context.Context, userID string) ([]models.Connection, error) {
	var conns []models.Connection
	err := slf.Db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

func (slf *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	return slf.Db.WithContext(ctx).Create(conn).Error
}

// UpdateAccessToken replaces the encrypted access token of a connection after
// an OAuth refresh.
func (slf *ConnectionRepository) UpdateAccessToken(ctx context.Context, id, accessTokenEnc, nonce string) error {
	return slf.Db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token_enc": accessTokenEnc,
			"token_nonce":      nonce,
		}).Error
}
