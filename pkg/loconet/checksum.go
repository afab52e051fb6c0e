// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

// Checksum returns the check byte for a frame body (opcode and data bytes,
// checksum excluded): the XOR fold of the body, complemented.
func Checksum(body []byte) byte {
	var fold byte
	for _, b := range body {
		fold ^= b
	}
	return fold ^ 0xFF
}

// AppendChecksum appends the check byte for body and returns the complete
// frame. The body slice may be reused as backing storage.
func AppendChecksum(body []byte) []byte {
	return append(body, Checksum(body))
}

// ChecksumOK reports whether a complete frame, checksum included, XOR-folds
// to 0xFF.
func ChecksumOK(frame []byte) bool {
	var fold byte
	for _, b := range frame {
		fold ^= b
	}
	return fold == 0xFF
}
