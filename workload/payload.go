// Package workload provides the small payload-generation helpers the
// seed end-to-end scenarios need (spec.md §8 "E1 — Echo leaf" and
// friends); the workload processing kernels themselves (PageRank,
// pointer-chasing, serialization) stay out of scope per spec.md §1 —
// these are opaque user callbacks a real workload registers on top of
// orchestrator.Leaf/Parent/Driver. Grounded on
// original_source/.../oldisim/src/Util.h's fixed-size payload fillers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package workload

import "math/rand"

// FixedPayload returns an n-byte payload of pseudo-random bytes, for
// workloads that only care about wire-format size, not content (Util.h's
// RandomString equivalent).
func FixedPayload(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// EchoPayload is the fixed request body the E1 echo-leaf scenario
// sends, and the reply callback below is the handler a leaf registers
// to answer it (spec.md §8 "Driver sends 10,000 × type 7, payload
// 'ping'. Expected: 10,000 responses with payload 'pong'").
var EchoPayload = []byte("ping")

// EchoReply transforms an echo-leaf request payload into its expected
// response payload.
func EchoReply(request []byte) []byte {
	if string(request) == string(EchoPayload) {
		return []byte("pong")
	}
	out := make([]byte, len(request))
	copy(out, request)
	return out
}
