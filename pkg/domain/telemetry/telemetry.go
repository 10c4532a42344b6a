package telemetry

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/domain/types"
)

// Telemetry is the record of one execution. It is created when DoIt is about
// to run and finalized exactly once when DoIt returns, whatever the outcome.
// A record is owned by the instance it describes and never shared.
type Telemetry struct {
	// ID is the unique identifier of this execution.
	ID types.ExecutionID `json:"id"`
	// CommandID is the registry key of the executed command.
	CommandID types.CommandID `json:"command_id"`
	// Creator is the command's ownership metadata.
	Creator string `json:"creator"`
	// Module is the declaring package path or manifest name.
	Module string `json:"module"`
	// Source is the declaring file path.
	Source string `json:"source"`
	// Host names the application the executor is embedded in.
	Host string `json:"host"`
	// Machine fingerprints the process.
	Machine Machine `json:"machine"`
	// Arguments are the resolved arguments DoIt received.
	Arguments map[string]any `json:"arguments,omitempty"`
	// Status is running until Finalize is called.
	Status Status `json:"status"`
	// StartedAt is when DoIt was entered.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the record was finalized (zero while running).
	CompletedAt time.Time `json:"completed_at"`
	// ExecutionTime is CompletedAt - StartedAt, never zero once finalized.
	ExecutionTime time.Duration `json:"execution_time"`
	// Trace is the failure trace; empty on success.
	Trace string `json:"trace,omitempty"`
	// Error is the failure message; empty on success.
	Error string `json:"error,omitempty"`
}

// Start creates a running record for an execution of def.
func Start(def command.Definition, host string, args command.Arguments) *Telemetry {
	return &Telemetry{
		ID:        types.NewExecutionID(),
		CommandID: types.CommandID(def.ID),
		Creator:   def.Creator,
		Module:    def.Module,
		Source:    def.Source,
		Host:      host,
		Machine:   CurrentMachine(),
		Arguments: args.Clone(),
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// Finalize closes the record. A nil err marks success. On failure the given
// trace is kept; when trace is empty the error text and the current goroutine
// stack are recorded instead, so a failed record always carries a trace.
//
// Finalize may be called once. Later calls return an error and leave the
// record untouched.
func (t *Telemetry) Finalize(err error, trace string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("telemetry %s already finalized with status %s", t.ID, t.Status)
	}

	t.CompletedAt = time.Now()
	t.ExecutionTime = t.CompletedAt.Sub(t.StartedAt)
	if t.ExecutionTime <= 0 {
		// Coarse clocks can report an identical instant for fast commands
		t.ExecutionTime = time.Nanosecond
	}

	if err == nil {
		t.Status = StatusSucceeded
		return nil
	}

	t.Status = StatusFailed
	t.Error = err.Error()
	if trace == "" {
		trace = fmt.Sprintf("%s\n\n%s", err.Error(), debug.Stack())
	}
	t.Trace = trace
	return nil
}

// Succeeded reports whether the record finalized without error.
func (t *Telemetry) Succeeded() bool {
	return t.Status == StatusSucceeded
}

// Failed reports whether the record finalized with an error.
func (t *Telemetry) Failed() bool {
	return t.Status == StatusFailed
}
