package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes recorded on group failures.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// TransientError marks a store error as safe to retry.
type TransientError struct {
	Err error
	Op  string
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err, produced by op, as retryable.
func NewTransientError(err error, op string) *TransientError {
	return &TransientError{Err: err, Op: op}
}

// transientPatterns are substrings of driver errors that clear up on their
// own: dropped connections, redis replicas loading or resharding, sqlite lock
// contention.
var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"use of closed network connection",
	"no such host",
	"loading redis is loading the dataset in memory",
	"tryagain",
	"clusterdown",
	"database is locked",
	"sqlite_busy",
	"too many clients",
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a network timeout or refused connection, a postgres
// connection-class or serialization failure, or a known transient driver
// message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P03": // cannot_connect_now
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ClassifyError labels err for the run report. Calls rejected by an open
// breaker count as transient.
func ClassifyError(err error) string {
	if IsTransient(err) || errors.Is(err, ErrCircuitOpen) {
		return ErrorTransient
	}
	return ErrorPermanent
}
