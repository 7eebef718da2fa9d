// Package delivery sends composed recommendation emails over SMTP and
// enforces the retry policy for transient failures. Permanent rejections
// (5xx SMTP replies, authentication failures) are surfaced immediately
// without further attempts.
package delivery

import (
	"errors"
	"net"
	"net/textproto"

	"recomail/internal/types"
)

// classifySendError converts a raw SMTP or network error into an AppError
// with a delivery error code. 4xx SMTP replies and network-level failures
// are transient; 5xx replies are permanent rejections. Reply code 535 is
// mapped to a dedicated auth code so operators can tell a credential
// problem apart from a recipient rejection.
func classifySendError(err error) *types.AppError {
	if err == nil {
		return nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == 535:
			return types.NewAppErrorWithDetails(types.ErrCodeDeliveryAuth,
				"SMTP authentication rejected", err,
				map[string]any{"smtp_code": protoErr.Code})
		case protoErr.Code >= 500:
			return types.NewAppErrorWithDetails(types.ErrCodeDeliveryRejected,
				"message rejected by SMTP server", err,
				map[string]any{"smtp_code": protoErr.Code})
		case protoErr.Code >= 400:
			return types.NewAppErrorWithDetails(types.ErrCodeDeliveryTransient,
				"temporary SMTP failure", err,
				map[string]any{"smtp_code": protoErr.Code})
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.NewAppError(types.ErrCodeDeliveryTransient,
			"network error during SMTP delivery", err)
	}

	// Connection setup and TLS handshake failures arrive as plain errors.
	// Treat anything unclassified as transient so it gets the retry budget.
	return types.NewAppError(types.ErrCodeDeliveryTransient,
		"SMTP delivery failed", err)
}

// isPermanent reports whether a classified delivery error must not be
// retried.
func isPermanent(err *types.AppError) bool {
	if err == nil {
		return false
	}
	return err.Code == types.ErrCodeDeliveryRejected || err.Code == types.ErrCodeDeliveryAuth
}
