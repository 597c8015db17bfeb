//go:build rp2040 || rp2350

package logx

import "smokenode/x/strconvx"

// SetLevel only distinguishes "debug" from the rest on MCU builds.
func SetLevel(level string) error {
	debug = level == "debug"
	return nil
}

var debug bool

type printer struct{ prefix string }

// New returns a println-backed logger tagged with prefix.
func New(prefix string) Logger { return printer{prefix: prefix} }

func (p printer) Debug(msg any, kv ...any) {
	if debug {
		p.emit("DEBU", msg, kv)
	}
}
func (p printer) Info(msg any, kv ...any)  { p.emit("INFO", msg, kv) }
func (p printer) Warn(msg any, kv ...any)  { p.emit("WARN", msg, kv) }
func (p printer) Error(msg any, kv ...any) { p.emit("ERRO", msg, kv) }

func (p printer) emit(lvl string, msg any, kv []any) {
	print(lvl, " ", p.prefix, ": ")
	printAny(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		print(" ")
		printAny(kv[i])
		print("=")
		printAny(kv[i+1])
	}
	println()
}

func printAny(v any) {
	switch x := v.(type) {
	case string:
		print(x)
	case int:
		print(x)
	case int32:
		print(x)
	case int64:
		print(strconvx.FormatInt(x, 10))
	case uint64:
		print(strconvx.FormatUint(x, 10))
	case uint8:
		print(x)
	case uint16:
		print(x)
	case uint32:
		print(x)
	case bool:
		print(x)
	case float32:
		print(strconvx.FormatFloat(float64(x), 'f', 3, 32))
	case float64:
		print(strconvx.FormatFloat(x, 'f', 3, 64))
	case error:
		print(x.Error())
	case interface{ String() string }:
		print(x.String())
	default:
		print("?")
	}
}

func withPrefix(l Logger, prefix string) (Logger, bool) {
	if _, ok := l.(printer); ok {
		return printer{prefix: prefix}, true
	}
	return nil, false
}
