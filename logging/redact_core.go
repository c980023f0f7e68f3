package logging

import (
	"go.uber.org/zap/zapcore"
)

// redactingCore wraps a zapcore.Core and scrubs string fields and messages
// before they reach the encoder. Non-string fields pass through untouched.
type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so that every entry written through it has
// sensitive data removed.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = RedactSensitiveData(entry.Message)
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f zapcore.Field) zapcore.Field {
	switch f.Type {
	case zapcore.StringType:
		f.String = RedactField(f.Key, f.String)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			if redacted := RedactSensitiveData(err.Error()); redacted != err.Error() {
				return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redacted}
			}
		}
	default:
		if IsSensitiveFieldName(f.Key) {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactedPlaceholder}
		}
	}
	return f
}
