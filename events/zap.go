package events

import (
	"go.uber.org/zap"
)

// ZapSink writes events as structured zap log entries. Event levels map to
// zap levels; the event type becomes the "event" field so log pipelines can
// filter on it.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Emit(e Event) {
	fields := make([]zap.Field, 0, len(e.Fields)+4)
	fields = append(fields, zap.String("event", string(e.Type)))
	if e.Symbol != "" {
		fields = append(fields, zap.String("symbol", e.Symbol))
	}
	if !e.Time.IsZero() {
		fields = append(fields, zap.Time("event_time", e.Time))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Level {
	case Error:
		s.log.Error(e.Message, fields...)
	case Warn:
		s.log.Warn(e.Message, fields...)
	default:
		s.log.Info(e.Message, fields...)
	}
}
