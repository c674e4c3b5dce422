package observability

import "pkt.systems/pslog"

type psLogger struct {
	l pslog.Logger
}

// PSLog adapts a pslog logger to the Logger interface. A nil logger yields a
// NopLogger.
func PSLog(l pslog.Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return psLogger{l: l}
}

func (p psLogger) Debug(msg string, fields ...Field) { p.l.Debug(msg, keyvals(fields)...) }
func (p psLogger) Info(msg string, fields ...Field)  { p.l.Info(msg, keyvals(fields)...) }
func (p psLogger) Warn(msg string, fields ...Field)  { p.l.Warn(msg, keyvals(fields)...) }
func (p psLogger) Error(msg string, fields ...Field) { p.l.Error(msg, keyvals(fields)...) }

func (p psLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return p
	}
	return psLogger{l: p.l.With(keyvals(fields)...)}
}

func keyvals(fields []Field) []any {
	if len(fields) == 0 {
		return nil
	}
	kv := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		v := f.Value()
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		kv = append(kv, f.Key(), v)
	}
	return kv
}
