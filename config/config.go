package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rect is a capture rectangle in virtual-desktop coordinates.
type Rect struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// Config holds runtime configuration for capture, detection, censoring and
// the overlay. Fields may be loaded from a JSON or YAML file and overridden
// by command-line flags.
type Config struct {
	Debug bool `json:"debug" yaml:"debug"`

	// Pipeline settings (the initial CensorSettings snapshot)
	TargetFPS       int      `json:"target_fps" yaml:"target_fps"`
	EnableDetection bool     `json:"enable_detection" yaml:"enable_detection"`
	EnableCensoring bool     `json:"enable_censoring" yaml:"enable_censoring"`
	CensorType      string   `json:"censor_type" yaml:"censor_type"`
	Strength        int      `json:"strength" yaml:"strength"`
	Confidence      float64  `json:"confidence" yaml:"confidence"`
	Targets         []string `json:"targets" yaml:"targets"`
	HoldLostTracks  bool     `json:"hold_lost_tracks" yaml:"hold_lost_tracks"`

	// Detector / decoder
	ClassNames            []string           `json:"class_names" yaml:"class_names"`
	NMSThresholds         map[string]float64 `json:"nms_thresholds" yaml:"nms_thresholds"`
	NMSDefault            float64            `json:"nms_default" yaml:"nms_default"`
	MinBoxPx              float64            `json:"min_box_px" yaml:"min_box_px"`
	InputSize             int                `json:"input_size" yaml:"input_size"`
	DetectorCommand       []string           `json:"detector_command" yaml:"detector_command"`
	DetectorFeatures      int                `json:"detector_features" yaml:"detector_features"`
	DetectorNumDetections int                `json:"detector_num_detections" yaml:"detector_num_detections"`

	// Tracking
	TrackIoU    float64 `json:"track_iou" yaml:"track_iou"`
	TrackMaxAge int     `json:"track_max_age" yaml:"track_max_age"`

	// Censoring / overlay
	MinCensorPx     int    `json:"min_censor_px" yaml:"min_censor_px"`
	TransparencyKey string `json:"transparency_key" yaml:"transparency_key"`
	SentinelMax     int    `json:"sentinel_max" yaml:"sentinel_max"`

	// Monitors / workers
	Monitors          []int `json:"monitors" yaml:"monitors"` // enabled monitor indices, empty = all
	PerMonitorWorkers bool  `json:"per_monitor_workers" yaml:"per_monitor_workers"`
	CaptureRect       *Rect `json:"capture_rect,omitempty" yaml:"capture_rect,omitempty"`
	StopJoinTimeoutMs int   `json:"stop_join_timeout_ms" yaml:"stop_join_timeout_ms"`

	ControlPanel bool `json:"control_panel" yaml:"control_panel"`
}

// DefaultClassNames is the label table of the bundled 18-class body-part detector.
var DefaultClassNames = []string{
	"FEMALE_GENITALIA_COVERED",
	"FACE_FEMALE",
	"BUTTOCKS_EXPOSED",
	"FEMALE_BREAST_EXPOSED",
	"FEMALE_GENITALIA_EXPOSED",
	"MALE_BREAST_EXPOSED",
	"ANUS_EXPOSED",
	"FEET_EXPOSED",
	"BELLY_COVERED",
	"FEET_COVERED",
	"ARMPITS_COVERED",
	"ARMPITS_EXPOSED",
	"FACE_MALE",
	"BELLY_EXPOSED",
	"MALE_GENITALIA_EXPOSED",
	"ANUS_COVERED",
	"FEMALE_BREAST_COVERED",
	"BUTTOCKS_COVERED",
}

// DefaultNMSThresholds holds the empirically tuned per-class IoU limits.
// Paired parts that sit close together get a low limit, large singular
// regions a high one.
func DefaultNMSThresholds() map[string]float64 {
	return map[string]float64{
		"FEMALE_BREAST_EXPOSED":    0.30,
		"FEMALE_BREAST_COVERED":    0.30,
		"MALE_BREAST_EXPOSED":      0.30,
		"BUTTOCKS_EXPOSED":         0.30,
		"BUTTOCKS_COVERED":         0.30,
		"ARMPITS_EXPOSED":          0.30,
		"ARMPITS_COVERED":          0.30,
		"FEET_EXPOSED":             0.30,
		"FEET_COVERED":             0.30,
		"BELLY_EXPOSED":            0.60,
		"BELLY_COVERED":            0.60,
		"FACE_FEMALE":              0.50,
		"FACE_MALE":                0.50,
		"FEMALE_GENITALIA_EXPOSED": 0.40,
		"MALE_GENITALIA_EXPOSED":   0.40,
		"ANUS_EXPOSED":             0.40,
	}
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:           false,
		TargetFPS:       20,
		EnableDetection: true,
		EnableCensoring: true,
		CensorType:      "mosaic",
		Strength:        15,
		Confidence:      0.35,
		Targets: []string{
			"FEMALE_BREAST_EXPOSED",
			"FEMALE_GENITALIA_EXPOSED",
			"MALE_GENITALIA_EXPOSED",
			"BUTTOCKS_EXPOSED",
			"ANUS_EXPOSED",
		},
		HoldLostTracks:        true,
		ClassNames:            append([]string(nil), DefaultClassNames...),
		NMSThresholds:         DefaultNMSThresholds(),
		NMSDefault:            0.45,
		MinBoxPx:              10,
		InputSize:             640,
		DetectorNumDetections: 8400,
		TrackIoU:              0.3,
		TrackMaxAge:           5,
		MinCensorPx:           4,
		TransparencyKey:       "#ff00ff",
		SentinelMax:           3,
		StopJoinTimeoutMs:     2000,
		ControlPanel:          true,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.TargetFPS <= 0 {
		c.TargetFPS = 20
	}
	if c.TargetFPS > 240 {
		c.TargetFPS = 240
	}
	switch strings.ToLower(strings.TrimSpace(c.CensorType)) {
	case "mosaic", "blur":
		c.CensorType = strings.ToLower(strings.TrimSpace(c.CensorType))
	default:
		c.CensorType = "mosaic"
	}
	if c.Strength < 1 {
		c.Strength = 1
	}
	if c.Strength > 50 {
		c.Strength = 50
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = 0.35
	}
	if len(c.ClassNames) == 0 {
		c.ClassNames = append([]string(nil), DefaultClassNames...)
	}
	if c.NMSThresholds == nil {
		c.NMSThresholds = DefaultNMSThresholds()
	}
	for k, v := range c.NMSThresholds {
		if v <= 0 || v > 1 {
			delete(c.NMSThresholds, k)
		}
	}
	if c.NMSDefault <= 0 || c.NMSDefault > 1 {
		c.NMSDefault = 0.45
	}
	if c.MinBoxPx < 0 {
		c.MinBoxPx = 10
	}
	if c.InputSize <= 0 {
		c.InputSize = 640
	}
	if c.DetectorFeatures <= 0 {
		c.DetectorFeatures = 4 + len(c.ClassNames)
	}
	if c.DetectorNumDetections <= 0 {
		c.DetectorNumDetections = 8400
	}
	if c.TrackIoU <= 0 || c.TrackIoU >= 1 {
		c.TrackIoU = 0.3
	}
	if c.TrackMaxAge < 0 {
		c.TrackMaxAge = 5
	}
	if c.MinCensorPx < 1 {
		c.MinCensorPx = 4
	}
	if strings.TrimSpace(c.TransparencyKey) == "" {
		c.TransparencyKey = "#ff00ff"
	}
	if c.SentinelMax < 0 || c.SentinelMax > 32 {
		c.SentinelMax = 3
	}
	if c.CaptureRect != nil && (c.CaptureRect.W <= 0 || c.CaptureRect.H <= 0) {
		c.CaptureRect = nil
	}
	if c.StopJoinTimeoutMs <= 0 {
		c.StopJoinTimeoutMs = 2000
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load attempts to read configuration from the given JSON or YAML file path.
// If the file does not exist it returns DefaultConfig(). On decode error it
// returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path, as YAML for .yaml/.yml
// paths and indented JSON otherwise.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
