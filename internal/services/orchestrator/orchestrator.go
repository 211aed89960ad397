package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
	"gatekeeper/internal/services/serialio"
)

// SerialLink is the serial protocol surface the event loop drives.
type SerialLink interface {
	Poll() (line string, ok bool, err error)
	SendGrant() error
	SendDeny() error
	Close() error
}

// Camera is the acquisition service lifecycle.
type Camera interface {
	Start() error
	Stop()
	Alive() bool
}

// FrameSource yields the most recent camera frame.
type FrameSource interface {
	Snapshot() (*models.Frame, bool)
}

// Recognizer turns a still image into a normalized plate candidate.
type Recognizer interface {
	Recognize(image []byte) (plate string, found bool, err error)
}

// AuthorizationStore answers point lookups and records movements.
type AuthorizationStore interface {
	IsAuthorized(plate string) (bool, error)
	LogMovement(plate, action string) error
	Close() error
}

// Notifier receives a copy of every decision (monitors, MQTT). Must never
// block the event loop.
type Notifier interface {
	Publish(models.Decision)
}

// State is the control loop state.
type State int

const (
	Initializing State = iota
	Ready
	Settling
	Capturing
	Recognizing
	Authorizing
	Responding
	ShuttingDown
)

// Config holds the loop timings.
type Config struct {
	PollInterval       time.Duration // serial poll tick
	SettleDelay        time.Duration // pause after detection before imaging; never zero
	CameraWarmup       time.Duration // startup wait before the aliveness check
	IdleHeartbeatPolls int           // empty polls between heartbeat log lines
}

// Stats are observational counters, safe to read concurrently.
type Stats struct {
	EventsProcessed int
	Heartbeats      int
}

// Orchestrator runs the gate control loop: it supervises startup and
// shutdown of the camera, serial session and store, and resolves each
// detection event to exactly one grant/deny token.
type Orchestrator struct {
	cfg       Config
	serial    SerialLink
	camera    Camera
	frames    FrameSource
	pipeline  Recognizer
	store     AuthorizationStore
	notifiers []Notifier
	logger    *logger.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// New creates an orchestrator over already-constructed components. The
// serial session and store are expected to be open; the camera is started
// by Run.
func New(cfg Config, serial SerialLink, camera Camera, frames FrameSource, pipeline Recognizer, store AuthorizationStore, notifiers []Notifier, logger *logger.Logger) (*Orchestrator, error) {
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("orchestrator: poll interval must be > 0")
	}
	if cfg.SettleDelay <= 0 {
		return nil, fmt.Errorf("orchestrator: settle delay must be > 0")
	}
	if cfg.IdleHeartbeatPolls <= 0 {
		return nil, fmt.Errorf("orchestrator: idle heartbeat polls must be > 0")
	}
	return &Orchestrator{
		cfg:       cfg,
		serial:    serial,
		camera:    camera,
		frames:    frames,
		pipeline:  pipeline,
		store:     store,
		notifiers: notifiers,
		logger:    logger,
		state:     Initializing,
	}, nil
}

// Run starts the camera, waits out the warm-up, then polls the serial link
// until ctx is canceled or the session faults. Cleanup runs on every exit
// path; each cleanup action is attempted independently.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.shutdown()

	o.setState(Initializing)

	if err := o.camera.Start(); err != nil {
		return fmt.Errorf("failed to initialize camera: %w", err)
	}

	o.logger.Debug("waiting %v for camera warm-up", o.cfg.CameraWarmup)
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(o.cfg.CameraWarmup):
	}
	if !o.camera.Alive() {
		return fmt.Errorf("camera capture loop did not survive warm-up")
	}

	o.setState(Ready)
	o.logger.Info("system initialized and ready")

	return o.loop(ctx)
}

func (o *Orchestrator) loop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		line, ok, err := o.serial.Poll()
		if err != nil {
			return fmt.Errorf("serial session faulted: %w", err)
		}
		if !ok {
			idle++
			if idle >= o.cfg.IdleHeartbeatPolls {
				o.logger.Debug("system idle - waiting for detection events")
				o.bumpHeartbeats()
				idle = 0
			}
			continue
		}

		idle = 0
		o.logger.Info("received from gate controller: %s", line)
		if !serialio.IsDetection(line) {
			// Not an event; logged and discarded.
			continue
		}

		if err := o.handleEvent(ctx); err != nil {
			return err
		}
		o.setState(Ready)
	}
}

// handleEvent resolves one detection event to exactly one outbound token.
// Recognition and store failures resolve to deny; only a serial write
// failure is fatal.
func (o *Orchestrator) handleEvent(ctx context.Context) error {
	event := models.NewDetectionEvent()
	o.logger.Info("processing detection event %s", event.ID)

	// Let the vehicle finish positioning before imaging. Deliberate
	// responsiveness/image-quality trade-off; tunable but never zero.
	o.setState(Settling)
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(o.cfg.SettleDelay):
	}

	o.setState(Capturing)
	plate := ""
	found := false
	if frame, ok := o.frames.Snapshot(); ok {
		o.setState(Recognizing)
		p, f, err := o.pipeline.Recognize(frame.Data)
		if err != nil {
			o.logger.Error("recognition failed: %v", err)
		} else {
			plate, found = p, f
		}
	} else {
		o.logger.Warning("no camera frame available")
	}

	granted := false
	if found {
		o.setState(Authorizing)
		g, err := o.store.IsAuthorized(plate)
		if err != nil {
			o.logger.Error("authorization lookup failed: %v", err)
		} else {
			granted = g
		}
	}

	o.setState(Responding)
	var sendErr error
	if granted {
		sendErr = o.serial.SendGrant()
	} else {
		sendErr = o.serial.SendDeny()
	}

	decision := models.Decision{
		EventID:   event.ID,
		Plate:     plate,
		Granted:   granted,
		LatencyMs: time.Since(event.ObservedAt).Milliseconds(),
		Timestamp: time.Now(),
	}
	o.record(decision)

	if sendErr != nil {
		return fmt.Errorf("failed to send decision token: %w", sendErr)
	}
	return nil
}

// record logs, persists and broadcasts one decision.
func (o *Orchestrator) record(decision models.Decision) {
	logPlate := decision.Plate
	if logPlate == "" {
		logPlate = models.PlateNone
	}

	if decision.Granted {
		o.logger.Info("access granted for plate %s (%d ms)", logPlate, decision.LatencyMs)
	} else {
		o.logger.Info("access denied for plate %s (%d ms)", logPlate, decision.LatencyMs)
	}

	if err := o.store.LogMovement(logPlate, decision.Action()); err != nil {
		o.logger.Error("failed to append movement log: %v", err)
	}

	for _, n := range o.notifiers {
		n.Publish(decision)
	}

	o.mu.Lock()
	o.stats.EventsProcessed++
	o.mu.Unlock()
}

// shutdown runs all cleanup actions unconditionally and independently; a
// failure in one never skips the others.
func (o *Orchestrator) shutdown() {
	o.setState(ShuttingDown)
	o.logger.Info("shutting down")

	o.camera.Stop()

	if err := o.store.Close(); err != nil {
		o.logger.Error("failed to close authorization store: %v", err)
	}

	if err := o.serial.Close(); err != nil {
		o.logger.Error("failed to close serial session: %v", err)
	}

	o.logger.Info("shutdown complete")
}

// State returns the current loop state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stats returns a copy of the observational counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) bumpHeartbeats() {
	o.mu.Lock()
	o.stats.Heartbeats++
	o.mu.Unlock()
}
