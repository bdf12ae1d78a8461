package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("transaction conflict"), "badger set")
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
	if err.Error() != "badger set: transaction conflict" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("busy"), "")
	wrapped := fmt.Errorf("kv: set user:1: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
	if !errors.Is(wrapped, inner.Err) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_Syscalls(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.EPIPE} {
		if !IsTransient(fmt.Errorf("dial tcp: %w", errno)) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_Postgres(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"08006", true},
		{"40001", true},
		{"40P01", true},
		{"53300", true},
		{"57P03", true},
		{"23505", false},
		{"42P01", false},
	}
	for _, tt := range tests {
		err := fmt.Errorf("kv: %w", &pgconn.PgError{Code: tt.code})
		if got := IsTransient(err); got != tt.want {
			t.Errorf("code %s: expected %v, got %v", tt.code, tt.want, got)
		}
	}
}

func TestIsTransient_DriverMessages(t *testing.T) {
	transient := []string{
		"LOADING Redis is loading the dataset in memory",
		"TRYAGAIN Multiple keys request during rehashing of slot",
		"CLUSTERDOWN The cluster is down",
		"database is locked (5) (SQLITE_BUSY)",
		"write: broken pipe",
	}
	for _, msg := range transient {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("%q should be transient", msg)
		}
	}

	if IsTransient(errors.New("ERR syntax error")) {
		t.Error("syntax errors are not transient")
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), "set")); got != ErrorTransient {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("merge: canonical profile has no handle")); got != ErrorPermanent {
		t.Errorf("expected permanent, got %s", got)
	}
	if got := ClassifyError(fmt.Errorf("commit: %w", ErrCircuitOpen)); got != ErrorTransient {
		t.Errorf("expected open circuit to be transient, got %s", got)
	}
}
