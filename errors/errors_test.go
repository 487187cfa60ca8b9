package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseCompile,
				Kind:   KindCompile,
				Path:   []string{"exports", "add"},
				Func:   "add",
				Detail: "function add at offset 3/9: type mismatch",
			},
			contains: []string{"[compile]", "compile", "exports.add", "in add", "offset 3/9"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRuntime,
				Kind:  KindTrap,
			},
			contains: []string{"[runtime]", "trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidData,
				Detail: "parse module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "invalid_data", "parse module", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := CompileFailed("f", "function f at offset 0/4: boom")
	if err.Message() != "function f at offset 0/4: boom" {
		t.Errorf("Message() = %q", err.Message())
	}

	bare := &Error{Phase: PhaseRuntime, Kind: KindTrap}
	if bare.Message() != bare.Error() {
		t.Errorf("Message() without detail = %q, want %q", bare.Message(), bare.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseCompile,
		Kind:  KindCompile,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseCompile, Kind: KindCompile}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseRuntime, Kind: KindCompile}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseCompile, Kind: KindTrap}) {
		t.Error("Is should not match different kind")
	}

	if !errors.Is(err, ErrCompile) {
		t.Error("errors.Is should match the ErrCompile sentinel")
	}
	if errors.Is(err, ErrArgument) {
		t.Error("errors.Is should not match ErrArgument")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLinking, KindTypeMismatch).
		Path("env", "log").
		Func("main").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "(i32) -> ()", "(i64) -> ()").
		Build()

	if err.Phase != PhaseLinking {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLinking)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "env" || err.Path[1] != "log" {
		t.Errorf("Path = %v, want [env log]", err.Path)
	}
	if err.Func != "main" {
		t.Errorf("Func = %v, want 'main'", err.Func)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected (i32) -> (), got (i64) -> ()" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Argument", func(t *testing.T) {
		err := Argument("needs typed buffer")
		if !errors.Is(err, ErrArgument) {
			t.Errorf("Argument should match ErrArgument, got %v", err)
		}
		if err.Detail != "needs typed buffer" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("CompileFailed", func(t *testing.T) {
		err := CompileFailed("g", "function g at offset 2/5: bad")
		if !errors.Is(err, ErrCompile) {
			t.Errorf("CompileFailed should match ErrCompile")
		}
		if err.Func != "g" {
			t.Errorf("Func = %q, want g", err.Func)
		}
	})

	t.Run("Trap", func(t *testing.T) {
		err := Trap("integer divide by zero")
		if !errors.Is(err, ErrTrap) {
			t.Errorf("Trap should match ErrTrap")
		}
	})

	t.Run("Internal", func(t *testing.T) {
		err := Internal("function %s resolved twice", "f")
		if !errors.Is(err, ErrInternal) {
			t.Errorf("Internal should match ErrInternal")
		}
		if err.Detail != "function f resolved twice" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseCompile, "simd")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseRuntime, []string{"table"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Load", func(t *testing.T) {
		cause := errors.New("bad magic")
		err := Load("parse module", cause)
		if err.Phase != PhaseLoad || !errors.Is(err, cause) {
			t.Errorf("Load = %v", err)
		}
	})
}

func TestMissingImportsError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#log_i32"})
		if len(err.Imports) != 1 {
			t.Fatalf("expected 1 import, got %d", len(err.Imports))
		}
		if err.Imports[0].Module != "env" {
			t.Errorf("module = %q, want env", err.Imports[0].Module)
		}
		if err.Imports[0].Name != "log_i32" {
			t.Errorf("name = %q, want log_i32", err.Imports[0].Name)
		}
	})

	t.Run("grouped by module with reasons", func(t *testing.T) {
		err := &MissingImportsError{}
		err.Add("env", "log", "")
		err.Add("math", "sin", "not a function")
		err.Add("env", "abort", "")

		msg := err.Error()
		for _, want := range []string{"unresolved 3 import(s)", "env:", "math:", "sin (not a function)", "abort"} {
			if !strings.Contains(msg, want) {
				t.Errorf("error %q should contain %q", msg, want)
			}
		}
	})

	t.Run("empty imports", func(t *testing.T) {
		err := NewMissingImportsError([]string{})
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#fn"})
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
	})
}
