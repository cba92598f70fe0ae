//go:build windows

package main

import (
	"os/exec"
	"strconv"
)

func setpgid(cmd *exec.Cmd) {
	// Process groups are a POSIX concept; Windows kills the tree via taskkill instead.
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
}
