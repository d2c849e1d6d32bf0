package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// TelemetryService dispatches inbound agent telemetry to the tracker, the
// credential log, and the device log, and persists script loads.
type TelemetryService struct {
	tracker     *ScriptProgressTracker
	credentials *CredentialLogStore
	deviceLog   *DeviceLog
	scriptStore driven.ScriptStore
	logger      *slog.Logger
}

// NewTelemetryService creates a TelemetryService. scriptStore may be nil.
func NewTelemetryService(
	tracker *ScriptProgressTracker,
	credentials *CredentialLogStore,
	deviceLog *DeviceLog,
	scriptStore driven.ScriptStore,
	logger *slog.Logger,
) *TelemetryService {
	return &TelemetryService{
		tracker:     tracker,
		credentials: credentials,
		deviceLog:   deviceLog,
		scriptStore: scriptStore,
		logger:      logger,
	}
}

// LoadScript replaces the visualized script. A failure to persist the load
// is logged; the tracker keeps the new script either way.
func (s *TelemetryService) LoadScript(ctx context.Context, text string) (model.Script, error) {
	script, err := s.tracker.Load(text)
	if err != nil {
		return model.Script{}, err
	}

	if s.scriptStore != nil {
		if err := s.scriptStore.Save(ctx, text, script.LoadedAt); err != nil {
			s.logger.Error("script load not persisted", "lines", len(script.Lines), "error", err)
		}
	}

	s.logger.Info("script loaded", "lines", len(script.Lines))
	return script, nil
}

// ReportProgress moves the execution cursor to line.
func (s *TelemetryService) ReportProgress(line int) (model.CursorChange, error) {
	change, err := s.tracker.AdvanceTo(line)
	if err != nil {
		return model.CursorChange{}, err
	}
	if !change.Rendered {
		s.logger.Debug("progress references a line outside the loaded script", "line", line)
	}
	return change, nil
}

// FinishScript clears the active line.
func (s *TelemetryService) FinishScript() model.CursorChange {
	s.logger.Info("script finished")
	return s.tracker.Clear()
}

// RecordCapture appends a captured credential to the log.
func (s *TelemetryService) RecordCapture(ctx context.Context, capture model.Capture) model.CredentialRecord {
	return s.credentials.Append(ctx, capture)
}

// RecordDeviceLog stores a debug line forwarded by the agent.
func (s *TelemetryService) RecordDeviceLog(component string, level model.LogLevel, msg string) model.DeviceLogEntry {
	return s.deviceLog.Append(component, level, msg)
}

// Restore reloads the most recent script and replays the capture journal.
// It is called once at startup before any telemetry arrives.
func (s *TelemetryService) Restore(ctx context.Context) error {
	if s.scriptStore != nil {
		latest, err := s.scriptStore.Latest(ctx)
		if err != nil {
			return fmt.Errorf("restore script: %w", err)
		}
		if latest != nil {
			if _, err := s.tracker.Load(latest.Text); err != nil {
				s.logger.Warn("stored script could not be reloaded", "script", latest.ID, "error", err)
			}
		}
	}

	n, err := s.credentials.Restore(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("telemetry state restored", "captures", n)
	return nil
}
