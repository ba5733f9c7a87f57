// Package cos — short, collision-resistant ID generation for node names,
// session IDs, and log line prefixes. Grounded on the teacher's
// cmn/cos/uuid.go, trimmed of the bucket-name and Kubernetes-proxy-ID
// helpers that package also carried (storage-cluster concerns with no
// fanout-simulator analogue).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short IDs, same shape as shortid.DEFAULT_ABC.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const (
	LenShortID  = 9 // as per https://github.com/teris-io/shortid#id-length
	lenSID      = 8
	mayOnlyHave = "may only contain letters, numbers, dashes (-), and underscores (_)"
	tooLongID   = 32
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

// InitShortID seeds the package-level short-ID generator. Call once at
// process startup (before any GenUUID), seeded from a
// monotonic-clock reading so that repeated runs on the same host don't
// collide.
func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID generates a short, URL-safe, globally-distinguishing ID used to
// name reactors, connections, and fanout trackers in log output.
func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

// GenSessionID derives a compact numeric-ish session ID from a node name
// plus a monotonically increasing per-process sequence, used to name
// outbound child/driver connections (spec §4.3's "unique within issuing
// connection direction" applies to request IDs, not session IDs — this
// is purely for logging/debugging).
func GenSessionID(nodeName string, seq uint64) string {
	digest := xxhash.Checksum64S(UnsafeB(nodeName), 0)
	return strconv.FormatUint(digest, 36) + "-" + strconv.FormatUint(seq, 10)
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

func GenNodeID() string { return CryptoRandS(lenSID) }

func ValidateNodeID(id string) error {
	if len(id) < lenSID {
		return fmt.Errorf("node ID %q is too short", id)
	}
	if !IsAlphaNice(id) {
		return fmt.Errorf("node ID %q is invalid: "+mayOnlyHave, id)
	}
	return nil
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice reports whether s is letters/numbers with internal-only
// '-'/'_', and not too long.
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := range l {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

// GenTie returns a 3-byte tie-breaker, used to disambiguate IDs generated
// within the same clock tick.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
