package logger

// TaggedLogger adds the same attributes to every record, so the lines of one
// session can be filtered by channel=... or session=...
type TaggedLogger struct {
	inner Logger
	attrs []any
}

func With(inner Logger, attrs ...any) *TaggedLogger {
	if t, ok := inner.(*TaggedLogger); ok {
		return &TaggedLogger{
			inner: t.inner,
			attrs: append(append([]any(nil), t.attrs...), attrs...),
		}
	}
	return &TaggedLogger{
		inner: inner,
		attrs: attrs,
	}
}

func (t *TaggedLogger) with(args []any) []any {
	out := make([]any, 0, len(t.attrs)+len(args))
	out = append(out, t.attrs...)
	return append(out, args...)
}

func (t *TaggedLogger) SetLogLevel(levelStr string) {
	t.inner.SetLogLevel(levelStr)
}

func (t *TaggedLogger) GetLogLevel() string {
	return t.inner.GetLogLevel()
}

func (t *TaggedLogger) Trace(msg string, args ...any) {
	t.inner.Trace(msg, t.with(args)...)
}

func (t *TaggedLogger) Debug(msg string, args ...any) {
	t.inner.Debug(msg, t.with(args)...)
}

func (t *TaggedLogger) Info(msg string, args ...any) {
	t.inner.Info(msg, t.with(args)...)
}

func (t *TaggedLogger) Warn(msg string, args ...any) {
	t.inner.Warn(msg, t.with(args)...)
}

func (t *TaggedLogger) Error(msg string, err error, args ...any) {
	t.inner.Error(msg, err, t.with(args)...)
}

func (t *TaggedLogger) Fatal(msg string, err error, args ...any) {
	t.inner.Fatal(msg, err, t.with(args)...)
}
