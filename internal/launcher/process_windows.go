package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess hides the console window and detaches the general
// from the launcher's Ctrl+C group.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate has no graceful signal to send on Windows.
func terminate(p *os.Process) error {
	return p.Kill()
}
