package response

import (
	"time"

	"autoflow/internal/api/models"
)

// Connection never carries the encrypted tokens.
type Connection struct {
	ID        string          `json:"id"`
	Platform  models.Platform `json:"platform"`
	Name      string          `json:"name"`
	Metadata  models.Metadata `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

func ConnectionFrom(c models.Connection) Connection {
	return Connection{
		ID:        c.ID,
		Platform:  c.Platform,
		Name:      c.Name,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
	}
}
