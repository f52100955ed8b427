package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"impromptu/internal/domain"
)

type keyMap struct {
	Quit       key.Binding
	Spin       key.Binding
	SpinAgain  key.Binding
	Mode       key.Binding
	Permission key.Binding
	ThinkLess  key.Binding
	ThinkMore  key.Binding
	SpeakLess  key.Binding
	SpeakMore  key.Binding
	Start      key.Binding
	Skip       key.Binding
	Back       key.Binding
	Play       key.Binding
	Continue   key.Binding
	Up         key.Binding
	Down       key.Binding
	Rate       key.Binding
	Notes      key.Binding
	Done       key.Binding
	Replay     key.Binding
	Again      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Spin:       key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "spin")),
		SpinAgain:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "spin again")),
		Mode:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mode")),
		Permission: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "test mic")),
		ThinkLess:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t/T", "think ∓5s")),
		ThinkMore:  key.NewBinding(key.WithKeys("T")),
		SpeakLess:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s/S", "speak ∓5s")),
		SpeakMore:  key.NewBinding(key.WithKeys("S")),
		Start:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
		Skip:       key.NewBinding(key.WithKeys("enter", "n"), key.WithHelp("enter", "speak now")),
		Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Play:       key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Continue:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "reflect")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "criterion")),
		Down:       key.NewBinding(key.WithKeys("down", "j")),
		Rate:       key.NewBinding(key.WithKeys("1", "2", "3", "4", "5"), key.WithHelp("1-5", "rate")),
		Notes:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "notes")),
		Done:       key.NewBinding(key.WithKeys("enter", "ctrl+s"), key.WithHelp("enter", "finish")),
		Replay:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "replay")),
		Again:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "new session")),
	}
}

// forScreen lists the bindings shown in the help line.
func (k keyMap) forScreen(view domain.View, notesFocused bool) []key.Binding {
	switch view.Screen {
	case domain.ScreenHome:
		bindings := []key.Binding{k.Spin, k.Mode, k.Permission}
		if view.Mode == domain.ModeManual {
			bindings = append(bindings, k.ThinkLess, k.SpeakLess)
		}
		return append(bindings, k.Quit)
	case domain.ScreenWordReveal:
		if !view.ActionsReady {
			return []key.Binding{k.Back, k.Quit}
		}
		return []key.Binding{k.Start, k.SpinAgain, k.Back, k.Quit}
	case domain.ScreenThink:
		return []key.Binding{k.Skip, k.Back, k.Quit}
	case domain.ScreenSpeak:
		return []key.Binding{k.Back, k.Quit}
	case domain.ScreenPlayback:
		if view.Audio != nil && view.Audio.Available {
			return []key.Binding{k.Play, k.Continue, k.Back, k.Quit}
		}
		return []key.Binding{k.Continue, k.Back, k.Quit}
	case domain.ScreenReflect:
		if notesFocused {
			done := key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "finish"))
			leave := key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab/esc", "ratings"))
			return []key.Binding{leave, done}
		}
		return []key.Binding{k.Up, k.Rate, k.Notes, k.Done, k.Back, k.Quit}
	case domain.ScreenScoreSummary:
		if view.Audio != nil && view.Audio.Available {
			return []key.Binding{k.Again, k.Replay, k.Quit}
		}
		return []key.Binding{k.Again, k.Quit}
	}
	return []key.Binding{k.Quit}
}
