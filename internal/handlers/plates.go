package handlers

import (
	"encoding/json"
	"net/http"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// PlateLister reads the authorized plate list.
type PlateLister interface {
	ListPlates() ([]models.Plate, error)
}

// ListPlatesHandler returns the authorized plates.
func ListPlatesHandler(store PlateLister, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plates, err := store.ListPlates()
		if err != nil {
			logger.Error("failed to list plates: %v", err)
			http.Error(w, "Unable to read plates", http.StatusInternalServerError)
			return
		}
		if plates == nil {
			plates = []models.Plate{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(plates); err != nil {
			logger.Error("error encoding JSON response: %v", err)
		}
	}
}
