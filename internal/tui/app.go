// Package tui is the terminal viewport over a running simulation.
//
// The model never touches the world. It reads detached frames from the
// simulator on a refresh tick and turns key presses into camera moves or
// queued simulator controls.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/world"
)

const defaultRefresh = 100 * time.Millisecond

// Rows taken by the status line and help line.
const chromeRows = 2

// Source is the read side of a simulator plus its control requests.
type Source interface {
	Frame() world.Frame
	Paused() bool
	TogglePause() bool
	Reset()
	Quit()
}

type Option func(*App)

func WithStyles(s Styles) Option { return func(a *App) { a.styles = s } }

func WithRefresh(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.refresh = d
		}
	}
}

type refreshMsg time.Time

// App is the bubbletea model for the viewport.
type App struct {
	src     Source
	bands   encoding.Bands
	styles  Styles
	keys    keyMap
	help    help.Model
	refresh time.Duration

	cam    Camera
	frame  world.Frame
	paused bool

	width  int
	height int
}

func NewApp(src Source, bands encoding.Bands, opts ...Option) *App {
	a := &App{
		src:     src,
		bands:   bands,
		styles:  DefaultStyles(),
		keys:    defaultKeyMap(),
		help:    help.New(),
		refresh: defaultRefresh,
		width:   80,
		height:  24,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.frame = src.Frame()
	a.paused = src.Paused()
	return a
}

func (a *App) Camera() Camera { return a.cam }

func (a *App) Init() tea.Cmd { return a.tick() }

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (a *App) viewSize() (int, int) {
	return max(1, a.width), max(1, a.height-chromeRows)
}

func (a *App) clampCamera() {
	w, h := a.viewSize()
	a.cam = a.cam.Clamp(a.frame.Width, a.frame.Height, w, h)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.clampCamera()
		return a, nil

	case refreshMsg:
		a.frame = a.src.Frame()
		a.paused = a.src.Paused()
		a.clampCamera()
		return a, a.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			a.src.Quit()
			return a, tea.Quit
		case key.Matches(msg, a.keys.Up):
			a.cam = a.cam.Pan(0, -1)
		case key.Matches(msg, a.keys.Down):
			a.cam = a.cam.Pan(0, 1)
		case key.Matches(msg, a.keys.Left):
			a.cam = a.cam.Pan(-1, 0)
		case key.Matches(msg, a.keys.Right):
			a.cam = a.cam.Pan(1, 0)
		case key.Matches(msg, a.keys.Pause):
			a.paused = a.src.TogglePause()
		case key.Matches(msg, a.keys.Reset):
			a.cam = Camera{}
		case key.Matches(msg, a.keys.Restart):
			a.src.Reset()
			a.cam = Camera{}
		}
		a.clampCamera()
		return a, nil
	}
	return a, nil
}

func (a *App) View() string {
	w, h := a.viewSize()
	grid := Render(a.frame, a.cam, w, h, a.bands, a.styles)
	status := a.styles.Status.Render(StatusLine(a.frame, a.cam, false))
	if a.paused {
		status += a.styles.Paused.Render(" | PAUSED")
	}
	return grid + "\n" + status + "\n" + a.styles.Help.Render(a.help.View(a.keys))
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, bands encoding.Bands, opts ...Option) error {
	p := tea.NewProgram(NewApp(src, bands, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
