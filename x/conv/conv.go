// Package conv writes integers into caller-owned buffers so hot paths such
// as topic rendering do not allocate.
package conv

const hexDigits = "0123456789ABCDEF"

// Utoa writes n in base 10 at the end of buf and returns the written tail.
// A uint64 needs 20 bytes; a shorter buf keeps the low digits.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	for i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return buf[i:]
}

// Itoa is Utoa with a leading minus for negative n.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	d := Utoa(buf, uint64(-n))
	i := len(buf) - len(d)
	if i == 0 {
		return d
	}
	buf[i-1] = '-'
	return buf[i-1:]
}

// U32Hex writes n as eight upper-case hex digits. buf must hold 8 bytes.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	out := buf[len(buf)-8:]
	for i := 7; i >= 0; i-- {
		out[i] = hexDigits[n&0xF]
		n >>= 4
	}
	return out
}
