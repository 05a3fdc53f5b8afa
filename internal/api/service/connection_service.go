package service

import (
	"context"
	"errors"
	"fmt"

	"autoflow"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/api/models"
	"autoflow/internal/api/repo"
	"autoflow/internal/workflow/nodes"
	"autoflow/pkg"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrPlatformMismatch   = errors.New("platform does not accept API keys")
)

// ConnectionService owns stored third party accounts and is the connection
// resolver of the workflow handlers.
type ConnectionService struct {
	connectionRepo *repo.ConnectionRepository
	cipher         *pkg.Cipher
	logger         zerolog.Logger
}

func NewConnectionService() *ConnectionService {
	cipher, err := pkg.NewCipher(autoflow.GetConfig().EncryptionKey)
	pkg.AssertNoError(autoflow.Logger, err, "Invalid ENCRYPTION_KEY")
	return NewConnectionServiceWith(repo.NewConnectionRepository(), cipher, autoflow.Logger)
}

func NewConnectionServiceWith(connectionRepo *repo.ConnectionRepository, cipher *pkg.Cipher, logger zerolog.Logger) *ConnectionService {
	return &ConnectionService{
		connectionRepo: connectionRepo,
		cipher:         cipher,
		logger:         logger,
	}
}

// Resolve loads a connection of userID and decrypts its tokens. A connection
// owned by someone else is reported as ErrConnectionNotFound.
func (slf *ConnectionService) Resolve(ctx context.Context, userID, connectionID string) (nodes.Connection, error) {
	conn, err := slf.connectionRepo.FindByID(ctx, userID, connectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nodes.Connection{}, ErrConnectionNotFound
		}
		slf.logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to load connection")
		return nodes.Connection{}, err
	}

	out := nodes.Connection{
		ID:       conn.ID,
		Platform: string(conn.Platform),
		Metadata: conn.Metadata,
	}
	if out.AccessToken, err = slf.decrypt(conn.AccessTokenEnc); err != nil {
		slf.logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to decrypt access token")
		return nodes.Connection{}, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if out.RefreshToken, err = slf.decrypt(conn.RefreshTokenEnc); err != nil {
		slf.logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to decrypt refresh token")
		return nodes.Connection{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return out, nil
}

// UpdateAccessToken re-encrypts and stores a refreshed access token.
func (slf *ConnectionService) UpdateAccessToken(ctx context.Context, connectionID, accessToken string) error {
	enc, err := slf.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	if err := slf.connectionRepo.UpdateAccessToken(ctx, connectionID, enc, pkg.Nonce(enc)); err != nil {
		slf.logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to persist refreshed token")
		return err
	}
	slf.logger.Info().Str("connectionId", connectionID).Msg("Access token refreshed")
	return nil
}

// SaveAPIKey encrypts and stores the key of an AI provider.
func (slf *ConnectionService) SaveAPIKey(ctx context.Context, userID string, dto request.SaveAPIKey) (response.Connection, error) {
	platform := models.Platform(dto.Platform)
	if !platform.IsAIProvider() {
		return response.Connection{}, ErrPlatformMismatch
	}

	conn := models.Connection{
		UserID:   userID,
		Platform: platform,
		Name:     dto.Name,
		Metadata: models.Metadata{},
	}
	if conn.Name == "" {
		conn.Name = dto.Platform
	}
	if dto.Endpoint != "" {
		conn.Metadata["endpoint"] = dto.Endpoint
	}
	if dto.Model != "" {
		conn.Metadata["model"] = dto.Model
	}
	if dto.APIKey != "" {
		enc, err := slf.cipher.Encrypt(dto.APIKey)
		if err != nil {
			slf.logger.Error().Err(err).Msg("Failed to encrypt API key")
			return response.Connection{}, err
		}
		conn.AccessTokenEnc = enc
		conn.TokenNonce = pkg.Nonce(enc)
	}

	if err := slf.connectionRepo.Create(ctx, &conn); err != nil {
		slf.logger.Error().Err(err).Str("platform", dto.Platform).Msg("Failed to save connection")
		return response.Connection{}, err
	}
	return response.ConnectionFrom(conn), nil
}

func (slf *ConnectionService) ListForUser(ctx context.Context, userID string) ([]response.Connection, error) {
	conns, err := slf.connectionRepo.FindByUser(ctx, userID)
	if err != nil {
		slf.logger.Error().Err(err).Str("userId", userID).Msg("Failed to list connections")
		return nil, err
	}
	out := make([]response.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, response.ConnectionFrom(c))
	}
	return out, nil
}

func (slf *ConnectionService) decrypt(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	return slf.cipher.Decrypt(enc)
}
