//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detach runs the server in a new process group without a console
func detach(cmd *exec.Cmd) {
	const detachedProcess = 0x00000008
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}
