//go:build windows

package process

import (
	"os/exec"
	"time"
)

func configureWorkerProcess(_ *exec.Cmd) {}

func terminateWorkerProcess(cmd *exec.Cmd, _ time.Duration, _ <-chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
