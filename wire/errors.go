// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrTooLong reports a decoded length field exceeding the configured
	// maximum message size (EMSGSIZE-equivalent).
	ErrTooLong = errors.New("wire: message too long")

	// ErrProtocol reports a framing violation: a bad version, type,
	// magic, or a zero-length payload (EPROTO-equivalent).
	ErrProtocol = errors.New("wire: protocol error")

	// ErrWouldBlock means "no further progress without waiting".
	// Re-exported so callers can branch on it without importing iox
	// directly.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means "this completion is usable and more completions will
	// follow"; see iox.ErrMore.
	ErrMore = iox.ErrMore
)
