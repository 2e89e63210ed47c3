package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BrokerAuto makes the bridge look up the broker with mDNS.
const BrokerAuto = "auto"

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// BridgeName is the <host> segment of every topic.
	BridgeName string

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTQoS      byte

	BLEEnabled    bool
	BLEAdapter    string
	BLEFilterPath string
	BLEQueueSize  int

	BME280Enabled      bool
	BME280Address      uint16
	SensorPollInterval time.Duration

	SystemInterval   time.Duration
	NetInterface     string
	DrainInterval    time.Duration
	BTBufferRecords  int
	SysBufferRecords int
	EnvBufferRecords int
	JSONBufferSize   int

	// JournalPath enables the sqlite message journal when set.
	JournalPath string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	bridgeName := envString("BRIDGE_NAME", "cloudpico")
	if strings.ContainsAny(bridgeName, "/+# ") {
		return Config{}, fmt.Errorf("invalid BRIDGE_NAME %q: must be a single topic level", bridgeName)
	}

	mqttBroker := envString("MQTT_BROKER", "localhost")

	mqttPortStr := envString("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT must be between 1 and 65535, got %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "cloudpico-bridge-" + uuid.New().String()[:8]
	}

	mqttQoSStr := envString("MQTT_QOS", "0")
	mqttQoS, err := strconv.ParseUint(mqttQoSStr, 10, 8)
	if err != nil || mqttQoS > 2 {
		return Config{}, fmt.Errorf("invalid MQTT_QOS %q (allowed: 0, 1, 2)", mqttQoSStr)
	}

	bleEnabled, err := envBool("BLE_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	bleQueue, err := envPositiveInt("BLE_QUEUE_SIZE", 64)
	if err != nil {
		return Config{}, err
	}

	bme280Enabled, err := envBool("BME280_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	bme280AddressStr := envString("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	sensorPollInterval, err := envPositiveDuration("SENSOR_POLL_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	systemInterval, err := envPositiveDuration("SYSTEM_INTERVAL", "120s")
	if err != nil {
		return Config{}, err
	}
	drainInterval, err := envPositiveDuration("DRAIN_INTERVAL", "20ms")
	if err != nil {
		return Config{}, err
	}

	btRecords, err := envPositiveInt("BT_BUFFER_RECORDS", 256)
	if err != nil {
		return Config{}, err
	}
	sysRecords, err := envPositiveInt("SYS_BUFFER_RECORDS", 64)
	if err != nil {
		return Config{}, err
	}
	envRecords, err := envPositiveInt("ENV_BUFFER_RECORDS", 32)
	if err != nil {
		return Config{}, err
	}
	jsonSize, err := envPositiveInt("JSON_BUFFER_SIZE", 2048)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		BridgeName:         bridgeName,
		MQTTBroker:         mqttBroker,
		MQTTPort:           mqttPort,
		MQTTClientID:       mqttClientID,
		MQTTUsername:       strings.TrimSpace(os.Getenv("MQTT_USERNAME")),
		MQTTPassword:       os.Getenv("MQTT_PASSWORD"),
		MQTTQoS:            byte(mqttQoS),
		BLEEnabled:         bleEnabled,
		BLEAdapter:         envString("BLE_ADAPTER", "hci0"),
		BLEFilterPath:      strings.TrimSpace(os.Getenv("BLE_FILTER_FILE")),
		BLEQueueSize:       bleQueue,
		BME280Enabled:      bme280Enabled,
		BME280Address:      uint16(bme280Address),
		SensorPollInterval: sensorPollInterval,
		SystemInterval:     systemInterval,
		NetInterface:       strings.TrimSpace(os.Getenv("NET_INTERFACE")),
		DrainInterval:      drainInterval,
		BTBufferRecords:    btRecords,
		SysBufferRecords:   sysRecords,
		EnvBufferRecords:   envRecords,
		JSONBufferSize:     jsonSize,
		JournalPath:        strings.TrimSpace(os.Getenv("JOURNAL_PATH")),
	}, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envPositiveInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func envPositiveDuration(key, def string) (time.Duration, error) {
	s := envString(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
