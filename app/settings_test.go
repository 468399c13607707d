package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/soocke/pixel-censor-go/config"
	"github.com/soocke/pixel-censor-go/domain/censor"
)

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CensorType = "blur"
	s := SettingsFromConfig(cfg)
	if s.CensorType != censor.Blur || s.Strength != cfg.Strength || s.TargetFPS != cfg.TargetFPS {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if !s.Targets.Contains("FEMALE_BREAST_EXPOSED") {
		t.Fatalf("targets not carried over: %v", s.Targets.Names())
	}
	if s.Interval() != time.Second/20 {
		t.Fatalf("interval: got %v", s.Interval())
	}
}

func TestSettingsStore_UpdateValidates(t *testing.T) {
	st := NewSettingsStore(testSettings())
	cases := []struct {
		key   string
		value any
		ok    bool
	}{
		{KeyStrength, 50, true},
		{KeyStrength, 51, false},
		{KeyStrength, 0, false},
		{KeyStrength, "12", true},
		{KeyConfidence, 0.5, true},
		{KeyConfidence, 1.0, false},
		{KeyConfidence, 0.0, false},
		{KeyConfidence, "0.25", true},
		{KeyTargetFPS, 240, true},
		{KeyTargetFPS, 241, false},
		{KeyTargetFPS, "abc", false},
		{KeyCensorType, "Blur", true},
		{KeyCensorType, "pixelate", false},
		{KeyEnableDetection, "false", true},
		{KeyEnableCensoring, 3, false},
		{KeyTargets, "FACE_MALE, FACE_FEMALE", true},
		{KeyTargets, 7, false},
	}
	for _, c := range cases {
		err := st.Update(c.key, c.value)
		if c.ok && err != nil {
			t.Fatalf("%s=%v: unexpected error %v", c.key, c.value, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidSetting) {
			t.Fatalf("%s=%v: got %v want ErrInvalidSetting", c.key, c.value, err)
		}
	}
	got := st.Load()
	if got.Strength != 12 || got.Confidence != 0.25 || got.CensorType != censor.Blur || got.EnableDetection {
		t.Fatalf("accepted values not published: %+v", got)
	}
	if !got.Targets.Contains("FACE_MALE") || !got.Targets.Contains("FACE_FEMALE") || len(got.Targets) != 2 {
		t.Fatalf("targets: got %v", got.Targets.Names())
	}
}

func TestSettingsStore_UnknownKey(t *testing.T) {
	st := NewSettingsStore(testSettings())
	if err := st.Update("Brightness", 1); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("got %v want ErrUnknownSetting", err)
	}
}

func TestSettingsStore_RejectedUpdateKeepsSnapshot(t *testing.T) {
	st := NewSettingsStore(testSettings())
	before := st.Load()
	_ = st.Update(KeyStrength, 99)
	if st.Load().Strength != before.Strength {
		t.Fatalf("rejected update leaked into snapshot")
	}
}

func TestSettingsStore_SnapshotsAreIsolated(t *testing.T) {
	st := NewSettingsStore(testSettings())
	old := st.Load()
	names := []string{"A"}
	if err := st.Update(KeyTargets, names); err != nil {
		t.Fatalf("update: %v", err)
	}
	names[0] = "B"
	if !st.Load().Targets.Contains("A") {
		t.Fatalf("caller mutation leaked into published targets")
	}
	if !old.Targets.Contains("FACE") || old.Targets.Contains("A") {
		t.Fatalf("previous snapshot changed: %v", old.Targets.Names())
	}
}

func TestSettingsStore_EmptyTargetsCensorNothing(t *testing.T) {
	st := NewSettingsStore(testSettings())
	if err := st.Update(KeyTargets, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(st.Load().CensorOptions().Targets); n != 0 {
		t.Fatalf("got %d targets want 0", n)
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	h := newHarness(t, oneMonitor(), false)
	c := &AppContainer{Config: config.DefaultConfig(), Controller: h.ctrl, Logger: discardLogger}
	if err := h.ctrl.UpdateSetting(KeyCensorType, "blur"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := h.ctrl.UpdateSetting(KeyStrength, 7); err != nil {
		t.Fatalf("update: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := c.SaveSettings(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CensorType != "blur" || got.Strength != 7 {
		t.Fatalf("got type=%s strength=%d", got.CensorType, got.Strength)
	}
	if len(got.Targets) != 1 || got.Targets[0] != "FACE" {
		t.Fatalf("targets: got %v", got.Targets)
	}
}
