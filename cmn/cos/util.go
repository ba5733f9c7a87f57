// Package cos — miscellaneous small helpers.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"errors"
	"io"
	"unsafe"
)

// Plural returns "s" unless n == 1, for log/error message formatting.
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// IsEOF reports whether err is (or wraps) io.EOF or io.ErrUnexpectedEOF —
// the two errors the framed-transport decoder (§4.1) treats as a clean
// peer disconnect rather than a transient I/O error.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

const cryptoAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CryptoRandS generates an n-byte alphanumeric string using
// crypto/rand, for IDs that must not collide across processes.
func CryptoRandS(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, c := range b {
		out[i] = cryptoAlphabet[int(c)%len(cryptoAlphabet)]
	}
	return string(out)
}

// UnsafeB casts a string to []byte without copying. The caller must not
// mutate the result.
func UnsafeB(s string) []byte { return unsafe.Slice(unsafe.StringData(s), len(s)) }

// UnsafeS casts a []byte to string without copying. The caller must not
// mutate b afterwards.
func UnsafeS(b []byte) string { return unsafe.String(unsafe.SliceData(b), len(b)) }
