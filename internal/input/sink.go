package input

import "log/slog"

// LoggingSink is a minimal Sink that logs every decoded event instead
// of injecting it into the host OS. Host input injection is out of
// scope for this server; this exists so a decoded input frame has a
// real destination end to end rather than being dropped unconditionally.
type LoggingSink struct {
	log *slog.Logger
}

// NewLoggingSink builds a Sink that logs through log.
func NewLoggingSink(log *slog.Logger) *LoggingSink {
	return &LoggingSink{log: log}
}

// HandleInput logs the decoded event's fields.
func (s *LoggingSink) HandleInput(ev Event) {
	s.log.Info("input event", "code", ev.Code, "p1", ev.P1, "p2", ev.P2, "p3", ev.P3, "p4", ev.P4)
}
