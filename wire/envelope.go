// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the fast framing codec used between two STREAM
// peers: a length-prefixed record with an 8-byte header (version, type,
// two magic bytes, 32-bit routing id) and zero-copy decode.
//
// Wire format, big-endian throughout, no compression, no alignment
// padding, no checksum:
//
//	offset 0..3  length     = 8 + len(payload)   (bytes following the length field)
//	offset 4     version    = 0x01
//	offset 5     type       = 0x00 data | 0x01 connect | 0x02 disconnect
//	offset 6     magic0     = 0x5A ('Z')
//	offset 7     magic1     = 0x4C ('L')
//	offset 8..11 routing_id = big-endian uint32
//	offset 12..  payload
//
// A payload length of zero is a protocol error. Maximum payload size is
// bounded by a configured limit (DefaultMaxMessageSize if unset).
package wire

import "encoding/binary"

// FrameType is the wire-level record kind.
type FrameType uint8

const (
	TypeData       FrameType = 0x00
	TypeConnect    FrameType = 0x01
	TypeDisconnect FrameType = 0x02
)

const (
	// LengthFieldLen is the size of the length prefix itself.
	LengthFieldLen = 4
	// HeaderAfterLengthLen is version(1)+type(1)+magic(2)+routing_id(4),
	// i.e. the fixed number of bytes the length field counts before the
	// payload begins.
	HeaderAfterLengthLen = 8
	// EnvelopeLen is the total fixed-size prefix of every record:
	// LengthFieldLen + HeaderAfterLengthLen.
	EnvelopeLen = LengthFieldLen + HeaderAfterLengthLen

	version = 0x01
	magic0  = 0x5A
	magic1  = 0x4C

	// DefaultMaxMessageSize is used when no explicit limit is configured.
	DefaultMaxMessageSize = 8 * 1024 * 1024
)

var byteOrder = binary.BigEndian

func validType(t FrameType) bool {
	return t == TypeData || t == TypeConnect || t == TypeDisconnect
}
