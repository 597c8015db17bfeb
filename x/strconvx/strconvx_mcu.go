//go:build rp2040 || rp2350

package strconvx

import (
	"errors"
	"math"

	"smokenode/x/conv"
)

// The MCU side covers what the firmware formats: decimal and hex integers
// and fixed-point floats. Other bases print in decimal and other float
// formats print as 'f'.

var (
	ErrSyntax = errors.New("invalid syntax")
	ErrRange  = errors.New("value out of range")
)

func Itoa(i int) string { return FormatInt(int64(i), 10) }

func Atoi(s string) (int, error) {
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, ErrSyntax
	}
	limit := uint64(math.MaxInt)
	if neg {
		limit++
	}
	var u uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrSyntax
		}
		d := uint64(c - '0')
		if u > (limit-d)/10 {
			return 0, ErrRange
		}
		u = u*10 + d
	}
	switch {
	case !neg:
		return int(u), nil
	case u == limit:
		return math.MinInt, nil
	}
	return -int(u), nil
}

func FormatInt(i int64, base int) string {
	if i < 0 {
		return "-" + FormatUint(uint64(-i), base)
	}
	return FormatUint(uint64(i), base)
}

func FormatUint(u uint64, base int) string {
	var buf [20]byte
	if base != 16 {
		return string(conv.Utoa(buf[:], u))
	}
	i := len(buf)
	for i > 0 {
		i--
		buf[i] = "0123456789abcdef"[u&0xF]
		u >>= 4
		if u == 0 {
			break
		}
	}
	return string(buf[i:])
}

// FormatFloat renders f with prec fractional digits. Magnitudes at or above
// 1e18 print as +Inf or -Inf.
func FormatFloat(f float64, _ byte, prec, _ int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case prec < 0:
		prec = 3
	case prec > 9:
		prec = 9
	}
	sign := ""
	if math.Signbit(f) {
		sign, f = "-", -f
	}
	scale := uint64(1)
	for i := 0; i < prec; i++ {
		scale *= 10
	}
	if f >= 1e18/float64(scale) {
		if sign == "" {
			return "+Inf"
		}
		return "-Inf"
	}
	v := uint64(f*float64(scale) + 0.5)
	var buf [20]byte
	s := sign + string(conv.Utoa(buf[:], v/scale))
	if prec == 0 {
		return s
	}
	frac := conv.Utoa(buf[:], v%scale+scale)
	return s + "." + string(frac[1:])
}
