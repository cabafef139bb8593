package errors

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
)

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.closeErr
}

func TestDeferClose(t *testing.T) {
	tests := []struct {
		name       string
		closer     io.Closer
		closeErr   error
		wantLogged bool
	}{
		{
			name:       "nil closer",
			closer:     nil,
			wantLogged: false,
		},
		{
			name:       "successful close",
			closer:     &mockCloser{},
			wantLogged: false,
		},
		{
			name:       "close with error",
			closer:     &mockCloser{closeErr: errors.New("close failed")},
			wantLogged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			DeferClose(logger, tt.closer, "test close")

			if tt.closer != nil {
				mc := tt.closer.(*mockCloser)
				if !mc.closed {
					t.Error("Close() was not called")
				}
			}

			logged := buf.Len() > 0
			if logged != tt.wantLogged {
				t.Errorf("logged = %v, want %v", logged, tt.wantLogged)
			}
		})
	}
}

func TestCloseAll(t *testing.T) {
	t.Run("all succeed", func(t *testing.T) {
		a, b := &mockCloser{}, &mockCloser{}
		if err := CloseAll(a, b); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if !a.closed || !b.closed {
			t.Error("expected all closers to be closed")
		}
	})

	t.Run("nil closers are skipped", func(t *testing.T) {
		if err := CloseAll(nil, nil); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("collects every failure", func(t *testing.T) {
		a := &mockCloser{closeErr: errors.New("fd close failed")}
		b := &mockCloser{}
		c := &mockCloser{closeErr: errors.New("map close failed")}

		err := CloseAll(a, b, c)
		if err == nil {
			t.Fatal("expected a combined error")
		}
		if !a.closed || !b.closed || !c.closed {
			t.Error("expected every closer to still be attempted")
		}
		if !containsAll(err.Error(), "fd close failed", "map close failed") {
			t.Errorf("expected error to mention both failures, got %q", err.Error())
		}
	})
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !bytes.Contains([]byte(s), []byte(sub)) {
			return false
		}
	}
	return true
}

func TestMust(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		msg       string
		wantPanic bool
	}{
		{
			name:      "no error",
			err:       nil,
			msg:       "initialization",
			wantPanic: false,
		},
		{
			name:      "with error",
			err:       errors.New("failed"),
			msg:       "initialization",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if (r != nil) != tt.wantPanic {
					t.Errorf("panic = %v, want %v", r != nil, tt.wantPanic)
				}
			}()

			Must(tt.err, tt.msg)
		})
	}
}
