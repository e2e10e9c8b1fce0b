package plugin

import (
	"go.uber.org/zap"
)

// ExtensionLogger labels every entry with the extension kind and name under
// the host's logger, e.g. "MCEngineEssential.Skript.EssentialExampleSkript".
type ExtensionLogger struct {
	log *zap.Logger
}

// NewExtensionLogger names base after kind and name. A nil base logs nothing.
func NewExtensionLogger(base *zap.Logger, kind, name string) *ExtensionLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ExtensionLogger{log: base.Named(kind).Named(name)}
}

// Info logs msg at info level.
func (l *ExtensionLogger) Info(msg string, fields ...zap.Field) {
	l.log.Info(msg, fields...)
}

// Warning logs msg at warn level.
func (l *ExtensionLogger) Warning(msg string, fields ...zap.Field) {
	l.log.Warn(msg, fields...)
}

// Debug logs msg at debug level.
func (l *ExtensionLogger) Debug(msg string, fields ...zap.Field) {
	l.log.Debug(msg, fields...)
}
