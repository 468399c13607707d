package view

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soocke/pixel-censor-go/app"
	"github.com/soocke/pixel-censor-go/ui/presenter"
	"github.com/soocke/pixel-censor-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const statusTick = 500 * time.Millisecond

// ControlPanel is the Tk window driving the controller. It implements
// presenter.ControlView; every method runs on the Tk thread.
type ControlPanel struct {
	ctrl      *app.Controller
	presenter *presenter.ControlPresenter
	logger    *slog.Logger
	shotDir   string
	save      func() error

	toggleBtn *ButtonWidget
	stateLbl  *LabelWidget
	statusLbl *LabelWidget
	errorLbl  *LabelWidget
	clockLbl  *LabelWidget
	form      *SettingsForm
	prev      *preview

	afterID   string
	startedAt time.Time
	shots     int
}

// NewControlPanel creates the presenter and registers it for controller
// faults. shotDir is where capture-test images are written; save persists
// the live settings.
func NewControlPanel(ctrl *app.Controller, shotDir string, save func() error, logger *slog.Logger) *ControlPanel {
	v := &ControlPanel{ctrl: ctrl, logger: logger, shotDir: shotDir, save: save}
	v.presenter = presenter.NewControlPresenter(ctrl, v)
	ctrl.OnFault(v.presenter.Fault)
	return v
}

// Run builds the window and blocks in the Tk event loop until Exit.
func (v *ControlPanel) Run() {
	App.WmTitle("Pixel Censor")
	WmProtocol(App, "WM_DELETE_WINDOW", v.exit)
	WmGeometry(App, "560x620+100+100")
	theme.InitStyles()
	v.build()
	v.schedule()
	App.Wait()
}

func (v *ControlPanel) build() {
	s := v.ctrl.Settings()

	v.toggleBtn = Button(Txt("Start"), Command(v.presenter.Toggle))
	Grid(v.toggleBtn, Row(0), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	v.stateLbl = Label(Txt("Stopped"), Borderwidth(1), Relief("ridge"))
	Grid(v.stateLbl, Row(0), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	v.clockLbl = Label(Txt(formatClock(0)), Width(14))
	Grid(v.clockLbl, Row(0), Column(2), Sticky("e"), Padx("0.4m"), Pady("0.3m"))
	v.SetRunning(false)

	v.form = NewSettingsForm(v.presenter.Apply)
	row := v.form.Toggle(1, app.KeyEnableDetection, "Detection", s.EnableDetection)
	row = v.form.Toggle(row, app.KeyEnableCensoring, "Censoring", s.EnableCensoring)
	row = v.form.Choice(row, app.KeyCensorType, "Censor Type", []string{"Mosaic", "Blur"}, s.CensorType.String())
	row = v.form.Build(row, []Field{
		{Key: app.KeyTargetFPS, Label: "Target FPS (1-240)", Value: strconv.Itoa(s.TargetFPS)},
		{Key: app.KeyStrength, Label: "Strength (1-50)", Value: strconv.Itoa(s.Strength)},
		{Key: app.KeyConfidence, Label: "Confidence (0-1)", Value: strconv.FormatFloat(s.Confidence, 'f', 2, 64)},
		{Key: app.KeyTargets, Label: "Targets (comma separated)", Value: strings.Join(s.Targets.Names(), ",")},
	})

	monitors := Frame()
	Grid(monitors, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	for i, m := range v.ctrl.Monitors() {
		idx, on := m.Index, m.Enabled
		label := fmt.Sprintf("Monitor %d", idx)
		var btn *ButtonWidget
		btn = Button(Txt(toggleText(label, on)), Command(func() {
			on = !on
			v.presenter.SetMonitor(idx, on)
			btn.Configure(Txt(toggleText(label, on)))
		}))
		Grid(btn, In(monitors), Row(0), Column(i), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	}
	row++

	shot := Button(Txt("Capture Test"), Command(v.captureTest))
	Grid(shot, Row(row), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	saveBtn := Button(Txt("Save Settings"), Command(v.saveSettings))
	Grid(saveBtn, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	exit := Button(Txt("Exit"), Command(v.exit))
	Grid(exit, Row(row), Column(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	row++

	v.prev = newPreview(row)
	row++
	v.errorLbl = Label(Txt(""), Anchor("w"), Foreground(theme.Current().Danger))
	Grid(v.errorLbl, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"))
	row++
	v.statusLbl = Label(Txt("idle"), Anchor("w"), Foreground(theme.Current().TextMuted))
	Grid(v.statusLbl, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"))
}

func (v *ControlPanel) captureTest() {
	v.shots++
	name := fmt.Sprintf("capture_test_%s_%d.png", time.Now().Format("20060102_150405"), v.shots)
	v.presenter.CaptureTest(filepath.Join(v.shotDir, name))
}

func (v *ControlPanel) saveSettings() {
	if v.save == nil {
		return
	}
	if err := v.save(); err != nil {
		v.ShowError(err.Error())
		return
	}
	v.SetStatus("Settings saved")
}

func (v *ControlPanel) schedule() {
	v.afterID = TclAfter(statusTick, func() {
		v.presenter.Tick()
		if !v.startedAt.IsZero() {
			v.clockLbl.Configure(Txt(formatClock(time.Since(v.startedAt))))
		}
		v.schedule()
	})
}

func (v *ControlPanel) exit() {
	if v.afterID != "" {
		TclAfterCancel(v.afterID)
	}
	if err := v.ctrl.Stop(); err != nil && v.logger != nil {
		v.logger.Warn("stop on exit", "error", err)
	}
	Destroy(App)
}

// SetRunning updates the toggle button and state badge.
func (v *ControlPanel) SetRunning(running bool) {
	bg, fg := theme.RunStateColors(running)
	if running {
		v.toggleBtn.Configure(Txt("Stop"))
		v.stateLbl.Configure(Txt("Censoring"), Background(bg), Foreground(fg))
		v.startedAt = time.Now()
		v.errorLbl.Configure(Txt(""))
		return
	}
	v.toggleBtn.Configure(Txt("Start"))
	v.stateLbl.Configure(Txt("Stopped"), Background(bg), Foreground(fg))
	v.startedAt = time.Time{}
}

func (v *ControlPanel) SetStatus(text string) {
	if v.statusLbl != nil {
		v.statusLbl.Configure(Txt(text))
	}
}

func (v *ControlPanel) ShowError(text string) {
	if v.logger != nil {
		v.logger.Warn("control panel error", "error", text)
	}
	if v.errorLbl != nil {
		v.errorLbl.Configure(Txt(text))
	}
}

func (v *ControlPanel) ShowPreview(path string) {
	if err := v.prev.Show(path); err != nil {
		v.ShowError(err.Error())
	}
}

// formatClock renders d as mm:ss, or h:mm:ss past the hour.
func formatClock(d time.Duration) string {
	s := int(d.Seconds())
	if s < 3600 {
		return fmt.Sprintf("Run: %02d:%02d", s/60, s%60)
	}
	return fmt.Sprintf("Run: %d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
