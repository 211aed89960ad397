package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"gatekeeper/internal/logger"
	ws "gatekeeper/internal/services/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MonitorWebsocketHandler upgrades the connection and registers it with the
// decision hub. The read loop only detects disconnects; monitors are
// listen-only.
func MonitorWebsocketHandler(hub *ws.Hub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				hub.Unregister(connection)
				return
			}
		}
	}
}
