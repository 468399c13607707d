package app

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/pixel-censor-go/config"
	"github.com/soocke/pixel-censor-go/domain/censor"
)

var (
	ErrUnknownSetting = errors.New("app: unknown setting")
	ErrInvalidSetting = errors.New("app: invalid setting value")
)

// Setting keys recognized by UpdateSetting.
const (
	KeyTargetFPS       = "TargetFPS"
	KeyEnableDetection = "EnableDetection"
	KeyEnableCensoring = "EnableCensoring"
	KeyCensorType      = "CensorType"
	KeyStrength        = "Strength"
	KeyConfidence      = "Confidence"
	KeyTargets         = "Targets"
)

// Settings is an immutable snapshot read by a pipeline at the start of a
// tick. Targets is never mutated after publication.
type Settings struct {
	TargetFPS       int
	EnableDetection bool
	EnableCensoring bool
	CensorType      censor.Kind
	Strength        int
	Confidence      float64
	Targets         censor.Targets
	HoldLostTracks  bool
}

// Interval is the target duration of one tick.
func (s Settings) Interval() time.Duration {
	fps := s.TargetFPS
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// CensorOptions returns the compositor options for this snapshot.
func (s Settings) CensorOptions() censor.Options {
	return censor.Options{Targets: s.Targets, Strength: s.Strength, Kind: s.CensorType}
}

// SettingsFromConfig builds the initial snapshot from a validated config.
func SettingsFromConfig(cfg *config.Config) Settings {
	kind, err := censor.ParseKind(cfg.CensorType)
	if err != nil {
		kind = censor.Mosaic
	}
	return Settings{
		TargetFPS:       cfg.TargetFPS,
		EnableDetection: cfg.EnableDetection,
		EnableCensoring: cfg.EnableCensoring,
		CensorType:      kind,
		Strength:        cfg.Strength,
		Confidence:      cfg.Confidence,
		Targets:         censor.NewTargets(cfg.Targets...),
		HoldLostTracks:  cfg.HoldLostTracks,
	}
}

// SettingsStore publishes snapshots with a single pointer swap. Writers are
// serialized; readers never block.
type SettingsStore struct {
	wmu sync.Mutex
	cur atomic.Pointer[Settings]
}

// NewSettingsStore returns a store holding initial.
func NewSettingsStore(initial Settings) *SettingsStore {
	s := &SettingsStore{}
	s.cur.Store(&initial)
	return s
}

// Load returns the current snapshot.
func (s *SettingsStore) Load() Settings { return *s.cur.Load() }

// Store replaces the snapshot wholesale.
func (s *SettingsStore) Store(v Settings) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.cur.Store(&v)
}

// Update validates value for key, then publishes a new snapshot that differs
// from the current one only in that field. Values may be native Go types or
// strings.
func (s *SettingsStore) Update(key string, value any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	next := *s.cur.Load()
	switch key {
	case KeyTargetFPS:
		v, err := toInt(value)
		if err != nil || v < 1 || v > 240 {
			return invalid(key, value, "1..240")
		}
		next.TargetFPS = v
	case KeyEnableDetection:
		v, err := toBool(value)
		if err != nil {
			return invalid(key, value, "bool")
		}
		next.EnableDetection = v
	case KeyEnableCensoring:
		v, err := toBool(value)
		if err != nil {
			return invalid(key, value, "bool")
		}
		next.EnableCensoring = v
	case KeyCensorType:
		v, err := toKind(value)
		if err != nil {
			return invalid(key, value, "Mosaic|Blur")
		}
		next.CensorType = v
	case KeyStrength:
		v, err := toInt(value)
		if err != nil || v < 1 || v > 50 {
			return invalid(key, value, "1..50")
		}
		next.Strength = v
	case KeyConfidence:
		v, err := toFloat(value)
		if err != nil || v <= 0 || v >= 1 || math.IsNaN(v) {
			return invalid(key, value, "(0,1)")
		}
		next.Confidence = v
	case KeyTargets:
		v, err := toTargets(value)
		if err != nil {
			return invalid(key, value, "set of class names")
		}
		next.Targets = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	s.cur.Store(&next)
	return nil
}

func invalid(key string, value any, want string) error {
	return fmt.Errorf("%w: %s=%v (want %s)", ErrInvalidSetting, key, value, want)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("not integral: %v", x)
		}
		return int(x), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("unsupported type %T", v)
}

func toKind(v any) (censor.Kind, error) {
	switch x := v.(type) {
	case censor.Kind:
		if x != censor.Mosaic && x != censor.Blur {
			return 0, fmt.Errorf("unknown kind %d", x)
		}
		return x, nil
	case string:
		return censor.ParseKind(x)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// toTargets copies the input so later caller mutations cannot leak into a
// published snapshot.
func toTargets(v any) (censor.Targets, error) {
	switch x := v.(type) {
	case []string:
		return censor.NewTargets(trimAll(x)...), nil
	case censor.Targets:
		return censor.NewTargets(x.Names()...), nil
	case map[string]struct{}:
		return censor.NewTargets(censor.Targets(x).Names()...), nil
	case string:
		return censor.NewTargets(trimAll(strings.Split(x, ","))...), nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
