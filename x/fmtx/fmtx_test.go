package fmtx

import (
	"errors"
	"testing"
	"time"
)

type link string

func (l link) String() string { return "link:" + string(l) }

func TestSprintfVerbs(t *testing.T) {
	for _, c := range []struct {
		fmt  string
		args []any
		want string
	}{
		{"unexpected payload on %s", []any{"config/node"}, "unexpected payload on config/node"},
		{"frame too large: %d", []any{300}, "frame too large: 300"},
		{"mask %x", []any{uint32(0x7fff800)}, "mask 7fff800"},
		{"literal %%", nil, "literal %"},
		{"q=%q", []any{`a"b\c`}, `q="a\"b\\c"`},
		{"%s: %v (retry in %s)", []any{link("mqtt"), errors.New("refused"), 250 * time.Millisecond}, "link:mqtt: refused (retry in 250ms)"},
		{"%v (retry in %s)", []any{errors.New("eof"), 2 * time.Second}, "eof (retry in 2s)"},
	} {
		if got := Sprintf(c.fmt, c.args...); got != c.want {
			t.Fatalf("Sprintf(%q, ...) = %q, want %q", c.fmt, got, c.want)
		}
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("bad %s: %d", "thing", 3)
	if err == nil || err.Error() != "bad thing: 3" {
		t.Fatalf("Errorf = %v", err)
	}
}
