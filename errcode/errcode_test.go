package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("nvs: no free pages")
	cases := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{Timeout, Timeout},
		{&E{C: Storage, Op: "retained.load", Err: cause}, Storage},
		{cause, Error},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Errorf("Of(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("radio fault")
	err := Wrap(StackInit, "mesh.start", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if !Fatal(err) {
		t.Fatal("stack init failure must be fatal")
	}
	if got := err.Error(); got != "mesh.start: stack_init: radio fault" {
		t.Fatalf("Error() = %q", got)
	}
	if Wrap(StackInit, "x", nil) != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
	if Fatal(Timeout) {
		t.Fatal("timeout is not fatal")
	}
}
