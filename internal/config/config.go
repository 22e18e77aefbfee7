package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/your-org/mot/internal/track"
)

// Config is the full application configuration, persisted as one YAML
// document. Missing keys fall back to defaults so old files keep loading.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Source     SourceConfig     `yaml:"source"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig groups everything the tracking engine needs.
type EngineConfig struct {
	Detector   DetectorConfig      `yaml:"detector"`
	Extractor  ExtractorConfig     `yaml:"extractor"`
	TrackerMgr track.ManagerConfig `yaml:"tracker_mgr"`
	Roi        RoiConfig           `yaml:"roi"`
}

// DetectorConfig tunes the object detection model.
type DetectorConfig struct {
	ModelPath       string  `yaml:"model_path"`
	InputWidth      int     `yaml:"input_width"`
	InputHeight     int     `yaml:"input_height"`
	ScoreThreshold  float32 `yaml:"score_threshold"`
	NMSThreshold    float32 `yaml:"nms_threshold"`
	FocusClassIDs   []int   `yaml:"focus_class_ids"`
	FilterEdgeBoxes bool    `yaml:"filter_edge_boxes"`
}

// ExtractorConfig tunes the appearance embedding model.
type ExtractorConfig struct {
	ModelPath   string `yaml:"model_path"`
	InputWidth  int    `yaml:"input_width"`
	InputHeight int    `yaml:"input_height"`
}

// RoiConfig is a normalized region of interest; (x, y, w, h) are fractions
// of the frame in [0, 1]. Disabled means the whole frame is processed.
type RoiConfig struct {
	Enabled bool    `yaml:"enabled"`
	X       float32 `yaml:"x"`
	Y       float32 `yaml:"y"`
	W       float32 `yaml:"w"`
	H       float32 `yaml:"h"`
}

// SourceConfig selects the frame source. URI is a video file path, an
// rtsp/http stream URL, or a numeric camera index.
type SourceConfig struct {
	URI       string  `yaml:"uri"`
	SampleFPS float64 `yaml:"sample_fps"`
}

// RecorderConfig tunes the CSV statistics sink. An empty path disables it.
type RecorderConfig struct {
	StatsCSVPath          string `yaml:"stats_csv_path"`
	EnableExtraStatistics bool   `yaml:"enable_extra_statistics"`
}

// VisualizerConfig tunes overlay snapshot rendering. An empty dir disables
// snapshots.
type VisualizerConfig struct {
	SnapshotDir   string `yaml:"snapshot_dir"`
	SnapshotEvery int    `yaml:"snapshot_every"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
}

// ServerConfig tunes the HTTP status/metrics surface.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads the YAML file, fills defaults for missing keys, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the full configuration document, overwriting path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	det := &cfg.Engine.Detector
	if det.InputWidth == 0 {
		det.InputWidth = 640
	}
	if det.InputHeight == 0 {
		det.InputHeight = 640
	}
	if det.ScoreThreshold == 0 {
		det.ScoreThreshold = 0.5
	}
	if det.NMSThreshold == 0 {
		det.NMSThreshold = 0.7
	}

	ext := &cfg.Engine.Extractor
	if ext.InputWidth == 0 {
		ext.InputWidth = 128
	}
	if ext.InputHeight == 0 {
		ext.InputHeight = 256
	}

	matcher := &cfg.Engine.TrackerMgr.Matcher
	if matcher.IoUWeight == 0 && matcher.FeatureWeight == 0 {
		matcher.IoUWeight = 0.5
		matcher.FeatureWeight = 0.5
	}
	if matcher.Threshold == 0 {
		matcher.Threshold = 0.3
	}

	tracker := &cfg.Engine.TrackerMgr.Tracker
	if tracker.MaxLife == 0 {
		tracker.MaxLife = 90
	}
	if tracker.FeatureMomentum == 0 {
		tracker.FeatureMomentum = 0.7
	}
	if tracker.HealthyPolicy == "" {
		tracker.HealthyPolicy = track.HealthyPermissive
	}
	if tracker.HealthyPercent == 0 {
		tracker.HealthyPercent = 1.0
	}

	roi := &cfg.Engine.Roi
	if !roi.Enabled && roi.W == 0 && roi.H == 0 {
		roi.W = 1
		roi.H = 1
	}

	if cfg.Source.SampleFPS < 0 {
		cfg.Source.SampleFPS = 0
	}

	if cfg.Visualizer.SnapshotEvery == 0 {
		cfg.Visualizer.SnapshotEvery = 30
	}
	if cfg.Visualizer.JPEGQuality == 0 {
		cfg.Visualizer.JPEGQuality = 85
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MOT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("MOT_DETECTOR_MODEL"); v != "" {
		cfg.Engine.Detector.ModelPath = v
	}
	if v := os.Getenv("MOT_EXTRACTOR_MODEL"); v != "" {
		cfg.Engine.Extractor.ModelPath = v
	}
	if v := os.Getenv("MOT_SOURCE_URI"); v != "" {
		cfg.Source.URI = v
	}
	if v := os.Getenv("MOT_STATS_CSV"); v != "" {
		cfg.Recorder.StatsCSVPath = v
	}
}

// Validate rejects configurations the engine cannot be constructed from.
func (c *Config) Validate() error {
	det := c.Engine.Detector
	if det.InputWidth <= 0 || det.InputHeight <= 0 {
		return fmt.Errorf("config: detector input %dx%d must be positive", det.InputWidth, det.InputHeight)
	}
	if det.ScoreThreshold < 0 || det.ScoreThreshold > 1 {
		return fmt.Errorf("config: detector score_threshold %v out of [0,1]", det.ScoreThreshold)
	}
	if det.NMSThreshold < 0 || det.NMSThreshold > 1 {
		return fmt.Errorf("config: detector nms_threshold %v out of [0,1]", det.NMSThreshold)
	}

	ext := c.Engine.Extractor
	if ext.InputWidth <= 0 || ext.InputHeight <= 0 {
		return fmt.Errorf("config: extractor input %dx%d must be positive", ext.InputWidth, ext.InputHeight)
	}

	m := c.Engine.TrackerMgr.Matcher
	if m.IoUWeight < 0 || m.FeatureWeight < 0 {
		return fmt.Errorf("config: matcher weights must be non-negative")
	}
	if m.IoUWeight+m.FeatureWeight <= 1e-6 {
		return fmt.Errorf("config: matcher weights sum to zero")
	}

	t := c.Engine.TrackerMgr.Tracker
	if t.MaxLife < 1 {
		return fmt.Errorf("config: tracker max_life %d must be >= 1", t.MaxLife)
	}
	if t.FeatureMomentum < 0 || t.FeatureMomentum > 1 {
		return fmt.Errorf("config: tracker feature_momentum %v out of [0,1]", t.FeatureMomentum)
	}
	if t.HealthyPolicy != track.HealthyPermissive && t.HealthyPolicy != track.HealthyStrict {
		return fmt.Errorf("config: tracker healthy_policy %q unknown", t.HealthyPolicy)
	}
	if t.HealthyPercent < 0 || t.HealthyPercent > 1 {
		return fmt.Errorf("config: tracker healthy_percent %v out of [0,1]", t.HealthyPercent)
	}

	roi := c.Engine.Roi
	if roi.Enabled {
		if roi.X < 0 || roi.X > 1 || roi.Y < 0 || roi.Y > 1 {
			return fmt.Errorf("config: roi origin (%v, %v) out of [0,1]", roi.X, roi.Y)
		}
		if roi.W <= 0 || roi.H <= 0 || roi.X+roi.W > 1 || roi.Y+roi.H > 1 {
			return fmt.Errorf("config: roi extent (%v, %v) out of range", roi.W, roi.H)
		}
	}
	return nil
}
