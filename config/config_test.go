package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_ClampsOutOfRange(t *testing.T) {
	c := DefaultConfig()
	c.Strength = 500
	c.Confidence = 1.5
	c.TargetFPS = -1
	c.CensorType = "Pixelate"
	c.NMSThresholds["FACE_MALE"] = 7
	_ = c.Validate()
	if c.Strength != 50 {
		t.Fatalf("strength: got %d want 50", c.Strength)
	}
	if c.Confidence != 0.35 {
		t.Fatalf("confidence: got %v want 0.35", c.Confidence)
	}
	if c.TargetFPS != 20 {
		t.Fatalf("fps: got %d want 20", c.TargetFPS)
	}
	if c.CensorType != "mosaic" {
		t.Fatalf("censor type: got %q want mosaic", c.CensorType)
	}
	if _, ok := c.NMSThresholds["FACE_MALE"]; ok {
		t.Fatalf("invalid nms threshold should be dropped")
	}
	if c.DetectorFeatures != 4+len(c.ClassNames) {
		t.Fatalf("detector features: got %d want %d", c.DetectorFeatures, 4+len(c.ClassNames))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TargetFPS != DefaultConfig().TargetFPS {
		t.Fatalf("expected defaults, got fps=%d", cfg.TargetFPS)
	}
}

func TestSaveLoad_JSONAndYAML(t *testing.T) {
	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		c := DefaultConfig()
		c.Strength = 22
		c.CensorType = "blur"
		c.Targets = []string{"FACE_MALE"}
		c.CaptureRect = &Rect{X: -1920, Y: 0, W: 1920, H: 1080}
		if err := c.Save(path); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if got.Strength != 22 || got.CensorType != "blur" {
			t.Fatalf("%s: got strength=%d type=%s", name, got.Strength, got.CensorType)
		}
		if len(got.Targets) != 1 || got.Targets[0] != "FACE_MALE" {
			t.Fatalf("%s: targets %v", name, got.Targets)
		}
		if got.CaptureRect == nil || got.CaptureRect.X != -1920 {
			t.Fatalf("%s: capture rect %+v", name, got.CaptureRect)
		}
	}
}

func TestLoad_BadJSONReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if cfg == nil || cfg.TargetFPS != 20 {
		t.Fatalf("expected defaults alongside error")
	}
}
