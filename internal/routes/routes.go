package routes

import (
	"net/http"

	"gatekeeper/internal/handlers"
	"gatekeeper/internal/logger"
	ws "gatekeeper/internal/services/websocket"
)

// Setup registers the HTTP API: recognition endpoints, the plate list and
// the monitor websocket.
func Setup(frames handlers.FrameSource, recognizer handlers.Recognizer, store handlers.PlateLister, hub *ws.Hub, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/lpr", handlers.RecognizeFromCameraHandler(frames, recognizer, logger))
	mux.HandleFunc("/api/lpr/upload", handlers.RecognizeFromUploadHandler(recognizer, logger))
	mux.HandleFunc("/api/plates", handlers.ListPlatesHandler(store, logger))
	mux.HandleFunc("/ws", handlers.MonitorWebsocketHandler(hub, logger))

	return mux
}
