package strconvx

import "testing"

func TestItoaAtoi(t *testing.T) {
	for _, v := range []int{0, 1, -1, 42, -99999, 2147483647} {
		s := Itoa(v)
		got, err := Atoi(s)
		if err != nil {
			t.Fatalf("Atoi(%q) error: %v", s, err)
		}
		if got != v {
			t.Fatalf("Itoa/Atoi round trip: want %d, got %d", v, got)
		}
	}
}

func TestAtoiSysfsValues(t *testing.T) {
	for _, c := range []struct {
		in   string
		want int
	}{
		{"2406", 2406},
		{"+12", 12},
		{"-7", -7},
		{"075", 75},
	} {
		got, err := Atoi(c.in)
		if err != nil || got != c.want {
			t.Fatalf("Atoi(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
	}
	for _, in := range []string{"", "-", "12a", "0x1F", "99999999999999999999"} {
		if _, err := Atoi(in); err == nil {
			t.Fatalf("Atoi(%q) accepted", in)
		}
	}
}

func TestFormatIntegers(t *testing.T) {
	if got := FormatInt(-15, 10); got != "-15" {
		t.Fatalf("FormatInt(-15) = %q", got)
	}
	if got := FormatUint(18446744073709551615, 10); got != "18446744073709551615" {
		t.Fatalf("FormatUint(max) = %q", got)
	}
	if got := FormatUint(0xbeef, 16); got != "beef" {
		t.Fatalf("FormatUint(0xbeef, 16) = %q", got)
	}
}

func TestFormatFloatFixed(t *testing.T) {
	for _, c := range []struct {
		f    float64
		prec int
		want string
	}{
		{2.8, 3, "2.800"},
		{0.0005, 3, "0.001"},
		{-1.26, 1, "-1.3"},
		{77, 0, "77"},
		{3.04, 2, "3.04"},
	} {
		if got := FormatFloat(c.f, 'f', c.prec, 64); got != c.want {
			t.Fatalf("FormatFloat(%v, %d) = %q, want %q", c.f, c.prec, got, c.want)
		}
	}
}
