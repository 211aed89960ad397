package camera

import (
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// fpsObservationFrames is how many captured frames pass between throughput
// log lines (~30 seconds at 30 FPS). Purely informational.
const fpsObservationFrames = 900

// Service keeps the frame buffer populated with the most recent camera
// image, independent of whatever the event loop is doing.
type Service struct {
	deviceID    int
	width       int
	height      int
	interval    time.Duration
	stopTimeout time.Duration

	buffer *Buffer
	logger *logger.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewService creates an acquisition service publishing into buffer.
func NewService(deviceID, width, height int, interval, stopTimeout time.Duration, buffer *Buffer, logger *logger.Logger) *Service {
	return &Service{
		deviceID:    deviceID,
		width:       width,
		height:      height,
		interval:    interval,
		stopTimeout: stopTimeout,
		buffer:      buffer,
		logger:      logger,
	}
}

// Start opens the camera device and launches the capture loop. A device-open
// failure is returned to the caller; the service is then not running.
func (s *Service) Start() error {
	capture, err := gocv.OpenVideoCapture(s.deviceID)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", s.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(s.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(s.height))

	// The negotiated resolution may differ from the requested one; log it,
	// do not enforce it.
	actualWidth := capture.Get(gocv.VideoCaptureFrameWidth)
	actualHeight := capture.Get(gocv.VideoCaptureFrameHeight)
	actualFPS := capture.Get(gocv.VideoCaptureFPS)
	s.logger.Info("camera %d opened: %.0fx%.0f at %.1f FPS", s.deviceID, actualWidth, actualHeight, actualFPS)

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.captureLoop(capture)

	return nil
}

// captureLoop reads frames until stopped. The device handle is released on
// every exit path.
func (s *Service) captureLoop(capture *gocv.VideoCapture) {
	defer close(s.done)
	defer capture.Close()

	s.running.Store(true)
	defer s.running.Store(false)

	mat := gocv.NewMat()
	defer mat.Close()

	frameCount := 0
	start := time.Now()

	for {
		select {
		case <-s.stop:
			s.logger.Debug("camera capture loop stopping")
			return
		default:
		}

		if ok := capture.Read(&mat); !ok || mat.Empty() {
			// Transient: retry on the next tick.
			s.logger.Warning("failed to capture frame from camera")
			time.Sleep(s.interval)
			continue
		}

		buf, err := gocv.IMEncode(".jpg", mat)
		if err != nil {
			s.logger.Warning("failed to encode frame: %v", err)
			time.Sleep(s.interval)
			continue
		}

		data := make([]byte, len(buf.GetBytes()))
		copy(data, buf.GetBytes())
		buf.Close()

		s.buffer.Publish(&models.Frame{
			Data:      data,
			Width:     mat.Cols(),
			Height:    mat.Rows(),
			Timestamp: time.Now(),
		})

		frameCount++
		if frameCount%fpsObservationFrames == 0 {
			elapsed := time.Since(start).Seconds()
			if elapsed > 0 {
				s.logger.Debug("camera capturing at %.2f FPS", float64(frameCount)/elapsed)
			}
			frameCount = 0
			start = time.Now()
		}

		time.Sleep(s.interval)
	}
}

// Alive reports whether the capture loop is running.
func (s *Service) Alive() bool {
	return s.running.Load()
}

// Stop signals the capture loop to exit and waits for it, bounded by the
// configured stop timeout. The loop releases the device handle itself; a
// timeout here means the loop is stuck mid-read and the handle will be
// released when the read returns.
func (s *Service) Stop() {
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
		// already stopped
	default:
		close(s.stop)
	}

	select {
	case <-s.done:
		s.logger.Debug("camera released")
	case <-time.After(s.stopTimeout):
		s.logger.Warning("camera capture loop did not stop within %v", s.stopTimeout)
	}
}
