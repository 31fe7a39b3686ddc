package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

type hasStack interface{ StackPCs() []uintptr }
type hasPC interface{ PC() uintptr }

func framesContain(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("pool exhausted")
	if err.Error() != "pool exhausted" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs hasStack
	if !errors.As(err, &hs) {
		t.Fatal("New should carry a stack")
	}
	if !framesContain(hs.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should start at the caller")
	}
}

func TestNewf_WrapsWithPercentW(t *testing.T) {
	err := Newf("acquire failed after %ds: %w", 30, errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("Newf should keep %w in the chain")
	}
	if err.Error() != "acquire failed after 30s: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

func TestWrap_PrefixAndPC(t *testing.T) {
	err := Wrapf(errSentinel, "ping %s", "db")
	if err.Error() != "ping db: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Wrap should unwrap to the cause")
	}
	hp, ok := err.(hasPC)
	if !ok || hp.PC() == 0 {
		t.Fatal("Wrap should record the caller PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap_PrefixAndPC") {
		t.Fatalf("PC points at %v, want the test function", fn)
	}
}

func TestEnsureTrace_KeepsExistingStack(t *testing.T) {
	orig := New("inner")
	wrapped := Wrap(orig, "outer")
	got := EnsureTrace(wrapped)
	if got != wrapped {
		t.Fatal("EnsureTrace should not restack an error that already has one")
	}
}

func TestEnsureTrace_AddsStack(t *testing.T) {
	got := EnsureTrace(errSentinel)
	var hs hasStack
	if !errors.As(got, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
	if !errors.Is(got, errSentinel) {
		t.Fatal("EnsureTrace should keep the cause")
	}
}
