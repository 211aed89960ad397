package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

type fakeFrames struct {
	frame *models.Frame
}

func (f *fakeFrames) Snapshot() (*models.Frame, bool) {
	if f.frame == nil {
		return nil, false
	}
	return f.frame, true
}

type fakeRecognizer struct {
	plate string
	found bool
	calls int
}

func (f *fakeRecognizer) Recognize(image []byte) (string, bool, error) {
	f.calls++
	return f.plate, f.found, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir())
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func decodeLPR(t *testing.T, rec *httptest.ResponseRecorder) LPRResponse {
	t.Helper()
	var resp LPRResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestRecognizeFromCamera_Success(t *testing.T) {
	frames := &fakeFrames{frame: &models.Frame{Data: []byte("jpeg"), Width: 4, Height: 1, Timestamp: time.Now()}}
	recognizer := &fakeRecognizer{plate: "29A12345", found: true}
	handler := RecognizeFromCameraHandler(frames, recognizer, testLogger(t))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/lpr", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeLPR(t, rec)
	if !resp.Status || resp.Plate != "29A12345" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRecognizeFromCamera_NoFrame(t *testing.T) {
	recognizer := &fakeRecognizer{plate: "29A12345", found: true}
	handler := RecognizeFromCameraHandler(&fakeFrames{}, recognizer, testLogger(t))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/lpr", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeLPR(t, rec)
	if resp.Status {
		t.Fatalf("expected status false without a frame")
	}
	if recognizer.calls != 0 {
		t.Fatalf("recognizer must not run without a frame")
	}
}

func TestRecognizeFromCamera_NotFound(t *testing.T) {
	frames := &fakeFrames{frame: &models.Frame{Data: []byte("jpeg")}}
	handler := RecognizeFromCameraHandler(frames, &fakeRecognizer{}, testLogger(t))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/lpr", nil))

	resp := decodeLPR(t, rec)
	if resp.Status || resp.Plate != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRecognizeFromUpload_RawImageBody(t *testing.T) {
	recognizer := &fakeRecognizer{plate: "30B67890", found: true}
	handler := RecognizeFromUploadHandler(recognizer, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/api/lpr/upload", bytes.NewReader([]byte("jpeg")))
	req.Header.Set("Content-Type", "image/jpeg")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeLPR(t, rec)
	if !resp.Status || resp.Plate != "30B67890" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRecognizeFromUpload_MultipartFile(t *testing.T) {
	recognizer := &fakeRecognizer{plate: "51C11111", found: true}
	handler := RecognizeFromUploadHandler(recognizer, testLogger(t))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="car.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	part.Write([]byte("jpeg"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/lpr/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeLPR(t, rec)
	if !resp.Status || resp.Plate != "51C11111" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRecognizeFromUpload_RejectsNonImage(t *testing.T) {
	recognizer := &fakeRecognizer{plate: "29A12345", found: true}
	handler := RecognizeFromUploadHandler(recognizer, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/api/lpr/upload", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image upload, got %d", rec.Code)
	}
	if recognizer.calls != 0 {
		t.Fatalf("recognizer must not run on rejected upload")
	}
}

func TestRecognizeFromUpload_RejectsGet(t *testing.T) {
	handler := RecognizeFromUploadHandler(&fakeRecognizer{}, testLogger(t))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/lpr/upload", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
