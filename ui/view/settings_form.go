package view

import (
	"strconv"
	"strings"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// Field is one editable setting row.
type Field struct {
	Key   string
	Label string
	Value string
}

// ApplyFunc forwards an edited value; it reports whether it was accepted.
type ApplyFunc func(key, text string) bool

// SettingsForm owns the settings rows. Each row applies independently so a
// rejected value never blocks the others.
type SettingsForm struct {
	apply   ApplyFunc
	widgets map[string]*TextWidget
	values  map[string]string
}

func NewSettingsForm(apply ApplyFunc) *SettingsForm {
	return &SettingsForm{apply: apply, widgets: make(map[string]*TextWidget), values: make(map[string]string)}
}

// Build grids the text rows starting at startRow and returns the next free row.
func (f *SettingsForm) Build(startRow int, fields []Field) (row int) {
	row = startRow
	for _, fd := range fields {
		lbl := Label(Txt(fd.Label), Anchor("w"))
		Grid(lbl, Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(28))
		Grid(w, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Delete("1.0", END)
		w.Insert("1.0", fd.Value)
		f.widgets[fd.Key] = w
		f.values[fd.Key] = fd.Value
		key := fd.Key
		btn := Button(Txt("Apply"), Command(func() { f.applyRow(key) }))
		Grid(btn, Row(row), Column(2), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		row++
	}
	return row
}

// Choice grids a read-only combobox whose selection is applied immediately.
func (f *SettingsForm) Choice(row int, key, label string, options []string, current string) int {
	lbl := Label(Txt(label), Anchor("w"))
	Grid(lbl, Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
	cb := TCombobox(Values(options), Width(26), State("readonly"))
	Grid(cb, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
	sel := 0
	for i, o := range options {
		if strings.EqualFold(o, current) {
			sel = i
		}
	}
	cb.Current(sel)
	Bind(cb, "<<ComboboxSelected>>", Command(func() {
		idx, err := strconv.Atoi(cb.Current(nil))
		if err != nil || idx < 0 || idx >= len(options) {
			return
		}
		f.apply(key, options[idx])
	}))
	return row + 1
}

// Toggle grids a button that flips a boolean setting.
func (f *SettingsForm) Toggle(row int, key, label string, on bool) int {
	state := on
	var btn *ButtonWidget
	btn = Button(Txt(toggleText(label, state)), Command(func() {
		if f.apply(key, strconv.FormatBool(!state)) {
			state = !state
			btn.Configure(Txt(toggleText(label, state)))
		}
	}))
	Grid(btn, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
	return row + 1
}

func (f *SettingsForm) applyRow(key string) {
	w := f.widgets[key]
	if w == nil {
		return
	}
	val := strings.TrimSpace(strings.Join(w.Get("1.0", END), ""))
	if f.apply(key, val) {
		f.values[key] = val
		return
	}
	// Restore the last accepted value.
	w.Delete("1.0", END)
	w.Insert("1.0", f.values[key])
}

func toggleText(label string, on bool) string {
	if on {
		return label + ": on"
	}
	return label + ": off"
}
