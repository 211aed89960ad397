package recognition

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"gatekeeper/internal/logger"
)

// DNNDetector finds the license plate region with an OpenCV DNN model and
// returns the cropped region re-encoded as JPEG.
type DNNDetector struct {
	net        gocv.Net
	confidence float64
	logger     *logger.Logger
}

// NewDNNDetector loads the detection network. A missing or unloadable model
// is a hard failure; the detector never starts degraded.
func NewDNNDetector(modelPath, configPath string, confidence float64, logger *logger.Logger) (*DNNDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection network from %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return nil, fmt.Errorf("failed to set network backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return nil, fmt.Errorf("failed to set network target: %w", err)
	}

	logger.Info("plate detection network loaded from %s", modelPath)
	return &DNNDetector{
		net:        net,
		confidence: confidence,
		logger:     logger,
	}, nil
}

// DetectAndCrop runs the network on the image and crops the
// highest-confidence plate box. found is false when no box clears the
// confidence threshold.
func (d *DNNDetector) DetectAndCrop(imageBytes []byte) ([]byte, bool, error) {
	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, false, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	best, found := d.bestBox(output, mat.Cols(), mat.Rows())
	if !found {
		return nil, false, nil
	}

	region := mat.Region(best)
	defer region.Close()

	buf, err := gocv.IMEncode(".jpg", region)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode plate crop: %w", err)
	}
	defer buf.Close()

	crop := make([]byte, len(buf.GetBytes()))
	copy(crop, buf.GetBytes())
	return crop, true, nil
}

// bestBox scans the detection output (rows of [_, class, confidence, x1, y1,
// x2, y2]) and returns the highest-confidence box clamped to the image.
func (d *DNNDetector) bestBox(output gocv.Mat, cols, rows int) (image.Rectangle, bool) {
	reshaped := output.Reshape(1, output.Total()/7)
	defer reshaped.Close()

	bestConfidence := float32(d.confidence)
	var best image.Rectangle
	found := false

	for i := 0; i < reshaped.Rows(); i++ {
		confidence := reshaped.GetFloatAt(i, 2)
		if confidence <= bestConfidence {
			continue
		}

		x1 := int(reshaped.GetFloatAt(i, 3) * float32(cols))
		y1 := int(reshaped.GetFloatAt(i, 4) * float32(rows))
		x2 := int(reshaped.GetFloatAt(i, 5) * float32(cols))
		y2 := int(reshaped.GetFloatAt(i, 6) * float32(rows))

		rect := image.Rect(x1, y1, x2, y2).Intersect(image.Rect(0, 0, cols, rows))
		if rect.Empty() {
			continue
		}

		bestConfidence = confidence
		best = rect
		found = true
	}

	if found {
		d.logger.Debug("plate box %v at confidence %.2f", best, bestConfidence)
	}
	return best, found
}

// Close releases the detection network.
func (d *DNNDetector) Close() error {
	return d.net.Close()
}
