package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Serial link to the gate microcontroller
	SerialPort string
	SerialBaud int

	// Camera
	CameraID          int
	CameraWidth       int
	CameraHeight      int
	CaptureInterval   time.Duration // sleep between frame reads (~30 FPS)
	CameraWarmup      time.Duration // startup wait before the aliveness check
	CameraStopTimeout time.Duration // bounded wait for the capture loop to exit

	// Authorization store
	DatabasePath string

	// Plate recognition
	ModelPath           string
	ModelConfigPath     string
	DetectionConfidence float64
	OCRURL              string

	// Event loop
	PollInterval       time.Duration
	SettleDelay        time.Duration
	IdleHeartbeatPolls int

	// HTTP surface
	HTTPPort int

	// Decision event publishing (disabled when broker is empty)
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	LogDirectory string
}

// Load reads configuration from the environment, with defaults matching the
// gate installation. A .env file in the working directory is honored when
// present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		SerialPort: getEnv("SERIAL_PORT", "/dev/ttyAMA0"),
		SerialBaud: getEnvAsInt("SERIAL_BAUD", 115200),

		CameraID:          getEnvAsInt("CAMERA_ID", 0),
		CameraWidth:       getEnvAsInt("CAMERA_WIDTH", 1280),
		CameraHeight:      getEnvAsInt("CAMERA_HEIGHT", 720),
		CaptureInterval:   getEnvAsMillis("CAPTURE_INTERVAL_MS", 33),
		CameraWarmup:      getEnvAsMillis("CAMERA_WARMUP_MS", 2000),
		CameraStopTimeout: getEnvAsMillis("CAMERA_STOP_TIMEOUT_MS", 1000),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join("data", "gatekeeper.db")),

		ModelPath:           getEnv("MODEL_PATH", filepath.Join("models", "plate_detector.onnx")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", ""),
		DetectionConfidence: getEnvAsFloat("DETECTION_CONFIDENCE", 0.3),
		OCRURL:              getEnv("OCR_URL", "http://127.0.0.1:8090/ocr"),

		PollInterval:       getEnvAsMillis("POLL_INTERVAL_MS", 100),
		SettleDelay:        getEnvAsMillis("SETTLE_DELAY_MS", 500),
		IdleHeartbeatPolls: getEnvAsInt("IDLE_HEARTBEAT_POLLS", 100),

		HTTPPort: getEnvAsInt("HTTP_PORT", 8000),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "gatekeeper"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "gatekeeper/decisions"),

		LogDirectory: getEnv("LOG_DIR", filepath.Join("data", "logs")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
