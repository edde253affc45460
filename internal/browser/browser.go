package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open launches the user's default browser at the given URL and returns
// without waiting for the process. Callers treat a failure as recoverable:
// the sign-in URL can always be opened by hand.
func Open(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("no browser launcher for platform %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
