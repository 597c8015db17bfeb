//go:build rp2040 || rp2350

package fmtx

import "smokenode/x/strconvx"

// The MCU formatter knows %s %v %d %x %q and %%. Flags, width and
// precision are not parsed. %s and %v take strings, integers, bools,
// errors and Stringers; anything else prints as ?.

func Sprintf(format string, a ...any) string {
	var b []byte
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			b = append(b, c)
			continue
		}
		i++
		verb := format[i]
		if verb == '%' {
			b = append(b, '%')
			continue
		}
		if next >= len(a) {
			b = append(b, "%!"...)
			b = append(b, verb)
			b = append(b, "(MISSING)"...)
			continue
		}
		arg := a[next]
		next++
		switch verb {
		case 'x':
			if n, ok := integer(arg); ok {
				b = append(b, strconvx.FormatUint(uint64(n), 16)...)
				continue
			}
		case 'q':
			b = quote(b, text(arg))
			continue
		}
		b = append(b, text(arg)...)
	}
	return string(b)
}

func Errorf(format string, a ...any) error { return textError(Sprintf(format, a...)) }

type textError string

func (e textError) Error() string { return string(e) }

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case error:
		return x.Error()
	case interface{ String() string }:
		return x.String()
	}
	if n, ok := integer(v); ok {
		return strconvx.FormatInt(n, 10)
	}
	if u, ok := v.(uint64); ok {
		return strconvx.FormatUint(u, 10)
	}
	return "?"
}

func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func quote(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		default:
			b = append(b, c)
		}
	}
	return append(b, '"')
}
