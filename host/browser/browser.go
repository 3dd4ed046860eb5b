// Package browser opens URLs in the user's default web browser.
package browser

import (
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/skratchdot/open-golang/open"
)

// Opener hands a URL to something outside the app.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error {
	return f(url)
}

// System opens URLs with the OS default handler.
type System struct{}

var _ Opener = System{}

// Open tries open-golang first and falls back to the platform command.
func (System) Open(url string) error {
	err := open.Run(url)
	if err == nil {
		return nil
	}
	log.Debug().Err(err).Msg("open-golang failed, trying platform command")
	return openPlatformSpecific(url)
}

func openPlatformSpecific(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, candidate := range []string{"xdg-open", "x-www-browser", "www-browser"} {
			if _, err := exec.LookPath(candidate); err == nil {
				cmd = exec.Command(candidate, url)
				break
			}
		}
		if cmd == nil {
			return errors.New("no suitable browser found")
		}
	default:
		return errors.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start browser command")
	}
	return nil
}
