//go:build !windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess puts the general in its own process group so a Ctrl+C
// at the terminal reaches only the launcher, which then stops every
// general itself.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
