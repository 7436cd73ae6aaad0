package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Tubing configuration.
	TubingThresholdFraction float64
	TubingMode              tubing.Mode
	TubingExtent            *tubing.Extent // nil means the whole grid
	TubingWorkers           int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	fraction, err := parseThresholdFraction()
	if err != nil {
		return nil, err
	}

	mode, err := tubing.ParseMode(os.Getenv("TUBING_MODE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TUBING_MODE: %w", err)
	}

	extent, err := parseExtent()
	if err != nil {
		return nil, err
	}

	workers, err := parseWorkers()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "ensemble-snapshots"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "ensemble-tubing"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "ensemble-tubing"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		TubingThresholdFraction: fraction,
		TubingMode:              mode,
		TubingExtent:            extent,
		TubingWorkers:           workers,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

// TubingOptions returns the service-wide tubing options.
func (c *Config) TubingOptions() tubing.Options {
	return tubing.Options{
		ThresholdFraction: c.TubingThresholdFraction,
		Mode:              c.TubingMode,
		Extent:            c.TubingExtent,
	}
}

func parseThresholdFraction() (float64, error) {
	s := sharedcfg.EnvOrDefault("TUBING_THRESHOLD_FRACTION", strconv.FormatFloat(tubing.DefaultThresholdFraction, 'g', -1, 64))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || v >= 1 {
		return 0, errors.New("invalid TUBING_THRESHOLD_FRACTION: must be a number in (0, 1)")
	}
	return v, nil
}

func parseExtent() (*tubing.Extent, error) {
	s := strings.TrimSpace(os.Getenv("TUBING_EXTENT"))
	if s == "" {
		return nil, nil
	}
	e, err := tubing.ParseExtent(s)
	if err != nil {
		return nil, fmt.Errorf("invalid TUBING_EXTENT: %w", err)
	}
	return &e, nil
}

func parseWorkers() (int, error) {
	s := os.Getenv("TUBING_WORKERS")
	if s == "" {
		return 4, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 256 {
		return 0, errors.New("invalid TUBING_WORKERS: must be an integer in [1, 256]")
	}
	return n, nil
}
