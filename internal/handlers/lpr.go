package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// FrameSource yields the most recent camera frame.
type FrameSource interface {
	Snapshot() (*models.Frame, bool)
}

// Recognizer turns a still image into a normalized plate candidate.
type Recognizer interface {
	Recognize(image []byte) (plate string, found bool, err error)
}

// LPRResponse is the recognition endpoint response shape.
type LPRResponse struct {
	Plate  string `json:"plate,omitempty"`
	Status bool   `json:"status"`
}

// RecognizeFromCameraHandler runs one snapshot-and-recognize cycle against
// the live frame buffer. Recognition misses answer {"status": false}, never
// a server error.
func RecognizeFromCameraHandler(frames FrameSource, recognizer Recognizer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, ok := frames.Snapshot()
		if !ok {
			logger.Warning("lpr request with no camera frame available")
			writeLPR(w, LPRResponse{Status: false}, logger)
			return
		}

		plate, found, err := recognizer.Recognize(frame.Data)
		if err != nil {
			logger.Error("lpr recognition failed: %v", err)
			writeLPR(w, LPRResponse{Status: false}, logger)
			return
		}
		if !found {
			writeLPR(w, LPRResponse{Status: false}, logger)
			return
		}

		writeLPR(w, LPRResponse{Plate: plate, Status: true}, logger)
	}
}

// RecognizeFromUploadHandler accepts an uploaded image (multipart "file"
// field or a raw image body) and runs recognition on it. Non-image uploads
// are a client error.
func RecognizeFromUploadHandler(recognizer Recognizer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		image, ok := readUploadedImage(w, r)
		if !ok {
			return
		}

		plate, found, err := recognizer.Recognize(image)
		if err != nil {
			logger.Error("upload recognition failed: %v", err)
			writeLPR(w, LPRResponse{Status: false}, logger)
			return
		}
		if !found {
			writeLPR(w, LPRResponse{Status: false}, logger)
			return
		}

		writeLPR(w, LPRResponse{Plate: plate, Status: true}, logger)
	}
}

// readUploadedImage extracts the image bytes from a multipart form or raw
// body, writing the client error itself when the upload is not an image.
func readUploadedImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file field", http.StatusBadRequest)
			return nil, false
		}
		defer file.Close()

		if partType := header.Header.Get("Content-Type"); partType != "" && !strings.HasPrefix(partType, "image/") {
			http.Error(w, "File is not an image", http.StatusBadRequest)
			return nil, false
		}

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading file", http.StatusBadRequest)
			return nil, false
		}
		return data, true
	}

	if !strings.HasPrefix(contentType, "image/") {
		http.Error(w, "File is not an image", http.StatusBadRequest)
		return nil, false
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func writeLPR(w http.ResponseWriter, resp LPRResponse, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("error encoding JSON response: %v", err)
	}
}
