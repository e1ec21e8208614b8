package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/world"
)

var testBands = encoding.Bands{Low: 3, High: 20}

type fakeSource struct {
	frame  world.Frame
	paused bool
	resets int
	quits  int
}

func (f *fakeSource) Frame() world.Frame { return f.frame }
func (f *fakeSource) Paused() bool       { return f.paused }
func (f *fakeSource) TogglePause() bool {
	f.paused = !f.paused
	return f.paused
}
func (f *fakeSource) Reset() { f.resets++ }
func (f *fakeSource) Quit()  { f.quits++ }

func testFrame(w, h int) world.Frame {
	f := world.Frame{Tick: 7, Generation: 2, Width: w, Height: h, Cells: make([]world.Cell, w*h)}
	set := func(x, y int, c world.Cell) {
		f.Cells[y*w+x] = c
		f.Total++
		if c.Alive {
			f.Alive++
		}
	}
	set(0, 0, world.Cell{ID: "A000001", Energy: 25, Alive: true})
	set(1, 0, world.Cell{ID: "A000002", Energy: 10, Alive: true})
	set(2, 0, world.Cell{ID: "A000003", Energy: 1, Alive: true})
	set(3, 0, world.Cell{ID: "A000004", Alive: false})
	return f
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func newTestApp(t *testing.T, src *fakeSource, w, h int) *App {
	t.Helper()
	a := NewApp(src, testBands, WithStyles(PlainStyles()))
	m, _ := a.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return m.(*App)
}

func TestCameraClamp(t *testing.T) {
	cases := []struct {
		in         Camera
		ww, wh     int
		vw, vh     int
		wantX, wan int
	}{
		{Camera{-3, -1}, 10, 10, 4, 4, 0, 0},
		{Camera{9, 9}, 10, 10, 4, 4, 6, 6},
		{Camera{5, 5}, 10, 10, 20, 20, 0, 0},
		{Camera{2, 3}, 10, 10, 4, 4, 2, 3},
	}
	for i, tc := range cases {
		got := tc.in.Clamp(tc.ww, tc.wh, tc.vw, tc.vh)
		if got.X != tc.wantX || got.Y != tc.wan {
			t.Fatalf("case %d: got %+v want (%d,%d)", i, got, tc.wantX, tc.wan)
		}
	}
}

func TestRenderGlyphsByBand(t *testing.T) {
	f := testFrame(6, 2)
	got := Render(f, Camera{}, 6, 2, testBands, PlainStyles())
	want := "@o.x  \n      "
	if got != want {
		t.Fatalf("render: got %q want %q", got, want)
	}
}

func TestRenderVisibleWindow(t *testing.T) {
	f := testFrame(6, 3)
	got := Render(f, Camera{X: 2, Y: 0}, 3, 1, testBands, PlainStyles())
	if got != ".x " {
		t.Fatalf("window: got %q want %q", got, ".x ")
	}
	// Camera past the edge is clamped back inside.
	got = Render(f, Camera{X: 100, Y: 100}, 3, 1, testBands, PlainStyles())
	if got != "   " {
		t.Fatalf("clamped window: got %q", got)
	}
	if got := Render(world.Frame{}, Camera{}, 10, 10, testBands, PlainStyles()); got != "" {
		t.Fatalf("empty frame: got %q", got)
	}
}

func TestStatusLine(t *testing.T) {
	f := testFrame(6, 2)
	got := StatusLine(f, Camera{X: 1, Y: 2}, false)
	want := "tick 7 | gen 2 | alive 3/4 | cam (1,2)"
	if got != want {
		t.Fatalf("status: got %q want %q", got, want)
	}
	if got := StatusLine(f, Camera{}, true); !strings.HasSuffix(got, "| PAUSED") {
		t.Fatalf("paused status: got %q", got)
	}
}

func TestPanAndCameraReset(t *testing.T) {
	src := &fakeSource{frame: testFrame(20, 20)}
	// 5 wide, 5 rows of grid after the status and help lines.
	a := newTestApp(t, src, 5, 7)

	for i := 0; i < 3; i++ {
		a.Update(runes("l"))
	}
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	if c := a.Camera(); c.X != 3 || c.Y != 1 {
		t.Fatalf("after pan: got %+v want (3,1)", c)
	}
	for i := 0; i < 50; i++ {
		a.Update(runes("l"))
		a.Update(runes("j"))
	}
	if c := a.Camera(); c.X != 15 || c.Y != 15 {
		t.Fatalf("pan clamp: got %+v want (15,15)", c)
	}
	a.Update(tea.KeyMsg{Type: tea.KeyUp})
	a.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if c := a.Camera(); c.X != 14 || c.Y != 14 {
		t.Fatalf("pan back: got %+v want (14,14)", c)
	}
	a.Update(runes("r"))
	if c := a.Camera(); c.X != 0 || c.Y != 0 {
		t.Fatalf("camera reset: got %+v", c)
	}
	if src.resets != 0 {
		t.Fatalf("camera reset must not restart the run")
	}
}

func TestPauseToggle(t *testing.T) {
	src := &fakeSource{frame: testFrame(6, 2)}
	a := newTestApp(t, src, 20, 10)

	a.Update(tea.KeyMsg{Type: tea.KeySpace})
	if !src.paused {
		t.Fatalf("space should pause the source")
	}
	if !strings.Contains(a.View(), "PAUSED") {
		t.Fatalf("view should show PAUSED")
	}
	a.Update(runes("p"))
	if src.paused || strings.Contains(a.View(), "PAUSED") {
		t.Fatalf("p should resume")
	}
}

func TestRestartAndQuit(t *testing.T) {
	src := &fakeSource{frame: testFrame(6, 2)}
	a := newTestApp(t, src, 20, 10)

	a.Update(runes("R"))
	if src.resets != 1 {
		t.Fatalf("resets: got %d want 1", src.resets)
	}
	_, cmd := a.Update(runes("q"))
	if src.quits != 1 {
		t.Fatalf("quits: got %d want 1", src.quits)
	}
	if cmd == nil {
		t.Fatalf("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("quit command should yield tea.QuitMsg")
	}
}

func TestRefreshPicksUpNewFrame(t *testing.T) {
	src := &fakeSource{frame: testFrame(6, 2)}
	a := newTestApp(t, src, 20, 10)

	next := testFrame(6, 2)
	next.Tick = 8
	src.frame = next
	_, cmd := a.Update(refreshMsg{})
	if cmd == nil {
		t.Fatalf("refresh should schedule the next tick")
	}
	if !strings.Contains(a.View(), "tick 8 |") {
		t.Fatalf("view should show the refreshed tick:\n%s", a.View())
	}
}
