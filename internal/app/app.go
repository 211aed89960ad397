package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gatekeeper/internal/config"
	"gatekeeper/internal/logger"
	"gatekeeper/internal/repository"
	"gatekeeper/internal/repository/sqlite"
	"gatekeeper/internal/routes"
	"gatekeeper/internal/services/camera"
	"gatekeeper/internal/services/events"
	"gatekeeper/internal/services/orchestrator"
	"gatekeeper/internal/services/recognition"
	"gatekeeper/internal/services/serialio"
	ws "gatekeeper/internal/services/websocket"
)

// App owns the wired component graph: serial link, authorization store,
// recognition pipeline, camera service, decision hub and the orchestrator
// that drives them.
type App struct {
	cfg    *config.Config
	logger *logger.Logger

	link     *serialio.Link
	store    repository.PlateRepository
	detector *recognition.DNNDetector
	hub      *ws.Hub
	mqtt     *events.MQTTPublisher
	orch     *orchestrator.Orchestrator
	server   *http.Server
}

// New constructs and connects every component. Any failure here means the
// gate cannot operate; resources opened before the failure are released.
func New(cfg *config.Config, logger *logger.Logger) (*App, error) {
	link, err := serialio.Connect(cfg.SerialPort, cfg.SerialBaud, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to open authorization store: %w", err)
	}
	logger.Info("authorization store opened at %s", cfg.DatabasePath)

	detector, err := recognition.NewDNNDetector(cfg.ModelPath, cfg.ModelConfigPath, cfg.DetectionConfidence, logger)
	if err != nil {
		store.Close()
		link.Close()
		return nil, fmt.Errorf("failed to load plate detector: %w", err)
	}
	pipeline := recognition.NewPipeline(detector, recognition.NewHTTPReader(cfg.OCRURL), logger)

	hub := ws.NewHub(logger)

	// MQTT is optional telemetry; a broker outage at startup must not keep
	// the gate offline.
	var publisher *events.MQTTPublisher
	notifiers := []orchestrator.Notifier{hub}
	if cfg.MQTTBroker != "" {
		publisher, err = events.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, logger)
		if err != nil {
			logger.Warning("decision events disabled: %v", err)
		} else {
			notifiers = append(notifiers, publisher)
		}
	}

	buffer := camera.NewBuffer()
	cameraService := camera.NewService(cfg.CameraID, cfg.CameraWidth, cfg.CameraHeight,
		cfg.CaptureInterval, cfg.CameraStopTimeout, buffer, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		PollInterval:       cfg.PollInterval,
		SettleDelay:        cfg.SettleDelay,
		CameraWarmup:       cfg.CameraWarmup,
		IdleHeartbeatPolls: cfg.IdleHeartbeatPolls,
	}, link, cameraService, buffer, pipeline, store, notifiers, logger)
	if err != nil {
		detector.Close()
		store.Close()
		link.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: routes.Setup(buffer, pipeline, store, hub, logger),
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		link:     link,
		store:    store,
		detector: detector,
		hub:      hub,
		mqtt:     publisher,
		orch:     orch,
		server:   server,
	}, nil
}

// Run drives the gate control loop until ctx is canceled or the serial
// session faults, serving the HTTP API alongside it. The HTTP surface is
// best-effort: a listen failure is logged and the gate keeps running.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run()

	go func() {
		a.logger.Info("http api listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error: %v", err)
		}
	}()

	err := a.orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Warning("http server shutdown: %v", shutdownErr)
	}

	a.hub.Stop()
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.detector.Close()

	return err
}
