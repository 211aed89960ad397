package recognition

import (
	"fmt"
	"strings"
	"time"

	"gatekeeper/internal/logger"
)

// Detector locates the license plate in a still image and returns the
// cropped plate sub-image. found is false when no plate region exists.
type Detector interface {
	DetectAndCrop(image []byte) (crop []byte, found bool, err error)
}

// Reader turns a cropped plate image into raw recognized text. An empty
// string means the engine could not read anything.
type Reader interface {
	ReadText(crop []byte) (string, error)
}

// Pipeline chains detection, OCR and normalization. It is the only surface
// the rest of the system sees; the vision models stay behind the two
// interfaces above.
type Pipeline struct {
	detector Detector
	reader   Reader
	logger   *logger.Logger
}

// NewPipeline creates a recognition pipeline.
func NewPipeline(detector Detector, reader Reader, logger *logger.Logger) *Pipeline {
	return &Pipeline{
		detector: detector,
		reader:   reader,
		logger:   logger,
	}
}

// Recognize returns the normalized plate candidate for an encoded still
// image. found is false when no plate region was detected, OCR produced no
// text, or normalization stripped everything.
func (p *Pipeline) Recognize(image []byte) (string, bool, error) {
	detectStart := time.Now()
	crop, found, err := p.detector.DetectAndCrop(image)
	if err != nil {
		return "", false, fmt.Errorf("plate detection failed: %w", err)
	}
	p.logger.Debug("plate detection took %.3f seconds", time.Since(detectStart).Seconds())
	if !found {
		p.logger.Warning("no license plate detected in the image")
		return "", false, nil
	}

	ocrStart := time.Now()
	text, err := p.reader.ReadText(crop)
	if err != nil {
		return "", false, fmt.Errorf("ocr failed: %w", err)
	}
	p.logger.Debug("ocr took %.3f seconds", time.Since(ocrStart).Seconds())

	plate := NormalizePlate(text)
	if plate == "" {
		p.logger.Warning("could not read license plate text")
		return "", false, nil
	}

	p.logger.Info("recognized license plate: %s (raw %q)", plate, text)
	return plate, true, nil
}

// NormalizePlate strips every non-alphanumeric character and uppercases the
// rest. Normalizing an already-normalized string returns it unchanged.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, ch := range raw {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			b.WriteRune(ch)
		case ch >= 'a' && ch <= 'z':
			b.WriteRune(ch - ('a' - 'A'))
		}
	}
	return b.String()
}
