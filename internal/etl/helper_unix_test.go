//go:build unix

package etl

import (
	"os"
	"os/exec"
	"syscall"
)

// startDetachedHolder starts a sleeper in its own process group that
// inherits this process's stdout, so the pipe outlives the fake tap.
func startDetachedHolder() (int, error) {
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$", "--")
	cmd.Env = append(os.Environ(), "FAKE_TAP_SCENARIO=hold")
	cmd.Stdout = os.Stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}
