// Package telemetry defines the Telemetry record kept for every command
// execution.
package telemetry

import (
	"os"
	"runtime"
)

// Status represents the state of one execution record.
type Status string

const (
	// StatusRunning indicates DoIt has started and the record is not finalized.
	StatusRunning Status = "running"
	// StatusSucceeded indicates DoIt returned without error.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates DoIt returned an error or panicked.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the record has been finalized.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// Machine fingerprints the process an execution ran in.
type Machine struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname,omitempty"`
}

// CurrentMachine returns the fingerprint of the running process.
func CurrentMachine() Machine {
	hostname, _ := os.Hostname()
	return Machine{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
		Hostname:  hostname,
	}
}
