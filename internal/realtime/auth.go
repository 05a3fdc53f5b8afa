package realtime

import (
	"net/http"

	"autoflow/pkg"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS handles the WebSocket upgrade with JWT authentication via query param.
func ServeWS(hub *Hub, jwtSecret string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := pkg.ValidateToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
			return
		}

		client := NewClient(hub, conn, claims.UserID, logger)
		send(hub, hub.register, client)

		go client.WritePump()
		go client.ReadPump()
	}
}
