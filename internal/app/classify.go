package app

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"messenger-relay/internal/domain"
)

// classifyTransportError decides whether a failed call is worth repeating.
// Timeouts and connection resets are transient; an ended caller context is a
// cancellation; everything else (bad URL, TLS failure, unexpected shapes) is
// fatal.
func classifyTransportError(ctx context.Context, err error) domain.FailureKind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return domain.KindCancelled
	}
	if isTimeout(err) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return domain.KindTransient
	}
	return domain.KindFatal
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
