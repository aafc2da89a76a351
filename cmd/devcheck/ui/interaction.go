package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var interaction struct {
	mu          sync.Mutex
	initialized bool
	interactive bool
}

// ConfigureInteraction decides once whether output targets a human
// terminal. Plain mode disables colors and in-place redraw.
func ConfigureInteraction(plain bool) {
	interactive := detectInteractiveMode(plain)

	interaction.mu.Lock()
	interaction.initialized = true
	interaction.interactive = interactive
	interaction.mu.Unlock()

	if interactive {
		lipgloss.SetColorProfile(termenv.ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsInteractive reports whether a human terminal is attached.
func IsInteractive() bool {
	interaction.mu.Lock()
	initialized := interaction.initialized
	interactive := interaction.interactive
	interaction.mu.Unlock()

	if initialized {
		return interactive
	}
	ConfigureInteraction(false)
	return IsInteractive()
}

func detectInteractiveMode(plain bool) bool {
	if plain {
		return false
	}
	if envTruthy("NO_INTERACTION") || envTruthy("CI") {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
