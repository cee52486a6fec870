// File: decode/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decode

import (
	"errors"

	"github.com/momentics/nioreactor/api"
)

var (
	// ErrNoProgress is raised when a decode call produced output without
	// consuming any input, so looping again would produce the same message
	// forever rather than making progress.
	ErrNoProgress = errors.New("decode: handler made no progress")
	// ErrDecode wraps any error returned by a Handler's Decode call before
	// it reaches the caller.
	ErrDecode = errors.New("decode: handler failed")
	// ErrFrameTooLarge is returned by handlers that enforce a maximum frame
	// size once a frame exceeds it without a terminator in sight.
	ErrFrameTooLarge = errors.New("decode: frame exceeds maximum length")
)

// wrapDecodeError attaches the spec.md §7 error kind matching err's sentinel
// chain (DECODE_NO_PROGRESS or FRAME_TOO_LARGE, falling back to the general
// DECODE_ERROR kind) so callers can branch on api.Error.Code instead of
// string-matching messages, while err itself remains reachable via Unwrap
// for errors.Is/As.
func wrapDecodeError(err error) error {
	code := api.ErrCodeDecode
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		code = api.ErrCodeFrameTooLarge
	case errors.Is(err, ErrNoProgress):
		code = api.ErrCodeDecodeNoProgress
	}
	return api.WrapError(code, err)
}
