package report

import (
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/logging"
)

// LogSink writes outcomes as structured log entries.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.Component(logger, "report")}
}

func (l *LogSink) ScenarioStarted(s Scenario) error {
	l.logger.Info("Scenario started",
		zap.String("feature", s.Feature),
		zap.String("scenario", s.Name),
		zap.Strings("tags", s.Tags),
	)
	return nil
}

func (l *LogSink) Emit(e Event) error {
	fields := []zap.Field{
		zap.String("scenario", e.Scenario.Name),
		zap.String("step", e.Step),
		zap.String("outcome", string(e.Outcome)),
		zap.Duration("duration", e.Duration),
	}
	switch e.Outcome {
	case Failed:
		fields = append(fields,
			zap.String("input", e.Input),
			zap.String("kind", string(e.Kind)),
			zap.String("diagnostic", e.Diagnostic),
		)
		l.logger.Error("Step failed", fields...)
	case Skipped:
		l.logger.Debug("Step skipped", fields...)
	default:
		l.logger.Debug("Step passed", fields...)
	}
	return nil
}

func (l *LogSink) ScenarioFinished(r Result) error {
	fields := []zap.Field{
		zap.String("feature", r.Scenario.Feature),
		zap.String("scenario", r.Scenario.Name),
		zap.String("outcome", string(r.Outcome)),
		zap.Duration("duration", r.Stop.Sub(r.Start)),
	}
	if r.Outcome == Failed {
		l.logger.Warn("Scenario finished", append(fields, zap.String("kind", string(r.Kind)), zap.String("diagnostic", r.Diagnostic))...)
		return nil
	}
	l.logger.Info("Scenario finished", fields...)
	return nil
}

func (l *LogSink) Close() error {
	_ = l.logger.Sync()
	return nil
}
