package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "aurora-dl-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// isServerReady reports whether the server answers /ready
func isServerReady() bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(serverURL + "/ready")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findServerBinary looks next to the CLI, then on PATH, then in ~/go/bin
func findServerBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), serverBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(serverBinary); err == nil {
		return path, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, "go", "bin", serverBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s binary not found", serverBinary)
}

// spawnServer starts the server detached from this terminal
func spawnServer() error {
	path, err := findServerBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(path)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", serverBinary, err)
	}
	// the child outlives the CLI
	return cmd.Process.Release()
}

// ensureServerRunning starts the server when it is not answering and
// waits until it reports ready
func ensureServerRunning() error {
	if isServerReady() {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Server not running, starting...")
	if err := spawnServer(); err != nil {
		return err
	}

	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		if isServerReady() {
			return nil
		}
		time.Sleep(serverPollInterval)
	}
	return fmt.Errorf("server did not become ready within %v", serverStartTimeout)
}
