//go:build !windows

package operation

import (
	"fmt"
	"os/exec"
	"path/filepath"
)

// startDetached launches a command without waiting for it to exit.
// Override in tests.
var startDetached = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

func shellOpen(path string) error {
	bin, err := exec.LookPath(openCommand)
	if err != nil {
		return fmt.Errorf("%s not available: %w", openCommand, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return startDetached(bin, abs)
}
