//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach runs the server in its own session so terminal signals do not reach it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
