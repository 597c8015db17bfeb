// Package logx is the logging seam shared by every service. Host and Linux
// builds log through charmbracelet/log; MCU builds print with println.
package logx

// Logger is the subset of a leveled, structured logger the services use.
// Key/value pairs follow the message.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(any, ...any) {}
func (Nop) Info(any, ...any)  {}
func (Nop) Warn(any, ...any)  {}
func (Nop) Error(any, ...any) {}

// Or returns l, or Nop when l is nil.
func Or(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// Named returns a logger for the sub-component prefix of l. Loggers made by
// New keep their backend and take prefix; any other logger gets it as a
// "svc" key on every line. A nil l gives Nop.
func Named(l Logger, prefix string) Logger {
	switch v := l.(type) {
	case nil, Nop:
		return Nop{}
	case named:
		return named{l: v.l, prefix: prefix}
	}
	if p, ok := withPrefix(l, prefix); ok {
		return p
	}
	return named{l: l, prefix: prefix}
}

type named struct {
	l      Logger
	prefix string
}

func (n named) kv(kv []any) []any { return append([]any{"svc", n.prefix}, kv...) }

func (n named) Debug(msg any, kv ...any) { n.l.Debug(msg, n.kv(kv)...) }
func (n named) Info(msg any, kv ...any)  { n.l.Info(msg, n.kv(kv)...) }
func (n named) Warn(msg any, kv ...any)  { n.l.Warn(msg, n.kv(kv)...) }
func (n named) Error(msg any, kv ...any) { n.l.Error(msg, n.kv(kv)...) }
