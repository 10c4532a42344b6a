// Package telemetry records finalized execution telemetry: it persists each
// record to a repository, logs it, and exports trace spans.
package telemetry

import (
	"go.uber.org/zap"

	domain "github.com/dshills/cmdkit/pkg/domain/telemetry"
)

// Recorder handles execution logging to persistent storage.
type Recorder struct {
	repository domain.Repository
	logger     *zap.Logger
}

// NewRecorder creates a recorder. A nil repository records to the log only.
func NewRecorder(repo domain.Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		repository: repo,
		logger:     logger.Named("telemetry"),
	}
}

// Record logs a finalized record and saves it. Storage failures are logged and
// never propagate to the command.
func (r *Recorder) Record(rec *domain.Telemetry) {
	if rec == nil {
		return
	}

	fields := []zap.Field{
		zap.String("execution_id", rec.ID.String()),
		zap.String("command", string(rec.CommandID)),
		zap.String("status", string(rec.Status)),
		zap.Duration("duration", rec.ExecutionTime),
	}
	if rec.Failed() {
		r.logger.Warn("command failed", append(fields,
			zap.String("error", rec.Error),
			zap.String("trace", rec.Trace),
		)...)
	} else {
		r.logger.Info("command executed", fields...)
	}

	if r.repository == nil {
		return
	}
	if err := r.repository.Save(rec); err != nil {
		// Log error but don't fail execution
		r.logger.Error("failed to save telemetry",
			zap.String("execution_id", rec.ID.String()),
			zap.Error(err),
		)
	}
}
