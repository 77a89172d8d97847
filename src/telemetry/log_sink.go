package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// LogSink writes each routing decision as a structured log line.
type LogSink struct {
	log *logrus.Logger
}

func NewLogSink(log *logrus.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, entry *models.RoutingLogEntry) error {
	fields := logrus.Fields{
		"entry_id":          entry.ID,
		"user_id":           entry.UserID,
		"intent":            entry.Intent,
		"model":             entry.ModelID,
		"input_tokens":      entry.InputTokens,
		"output_tokens":     entry.OutputTokens,
		"cached_tokens":     entry.CachedTokens,
		"cost_usd":          entry.CostUSD,
		"latency_ms":        entry.LatencyMs,
		"degraded":          entry.Degraded,
		"classifier_source": entry.ClassifierSource,
		"confidence":        entry.Confidence,
		"success":           entry.Success,
	}
	if entry.ErrorKind != "" {
		fields["error_kind"] = entry.ErrorKind
	}

	s.log.WithFields(fields).Info("Routing decision")
	return nil
}
