// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
)

// maxIPv6Expansion bounds how many individual addresses an IPv6 CIDR
// is allowed to expand into. The spec does not state a bound, but an
// unbounded expansion of, say, a /64 would exhaust memory; this is a
// practical governor on an otherwise-unbounded expansion policy, not
// a spec-mandated value.
const maxIPv6Expansion = 1 << 16

// validateIPEntry checks one ACL entry against spec §4.3.3: a literal
// IPv4/IPv6 address, a CIDR, or an IPv4 entry with `*` in the fourth
// octet alone or in both the third and fourth octets.
func validateIPEntry(entry string) error {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		if err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		return nil
	}
	if strings.Contains(entry, "*") {
		return validateWildcard(entry)
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("not a valid IP address: %q", entry)
	}
	return nil
}

func validateWildcard(entry string) error {
	parts := strings.Split(entry, ".")
	if len(parts) != 4 {
		return fmt.Errorf("wildcard entries must be dotted IPv4: %q", entry)
	}
	if parts[3] != "*" {
		return fmt.Errorf("%q: wildcard must appear in the fourth octet", entry)
	}
	if parts[2] == "*" {
		return validOctets(parts[:2])
	}
	return validOctets(parts[:3])
}

func validOctets(parts []string) error {
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("invalid octet %q", p)
		}
	}
	return nil
}

// validateEmailEntry applies the data server's own lenient rule
// (spec §4.3.3): exactly one `@`, a `.` at or after it, no leading
// `@`, no comma.
func validateEmailEntry(entry string) error {
	if strings.Contains(entry, ",") {
		return fmt.Errorf("email entries may not contain a comma: %q", entry)
	}
	at := strings.Count(entry, "@")
	if at != 1 {
		return fmt.Errorf("email must contain exactly one '@': %q", entry)
	}
	idx := strings.IndexByte(entry, '@')
	if idx == 0 {
		return fmt.Errorf("email may not start with '@': %q", entry)
	}
	if !strings.Contains(entry[idx:], ".") {
		return fmt.Errorf("email must contain a '.' at or after '@': %q", entry)
	}
	return nil
}

// expandForBlockList expands one IP block list entry ("allow ranges =
// true"): CIDRs flatten to /24 (`a.b.c.*`) buckets when the covered
// range is ≥256 and <65536 addresses, to /16 (`a.b.*.*`) buckets when
// ≥65536, otherwise to individual addresses. Wildcard entries and
// literal addresses pass through unchanged.
func expandForBlockList(entry string) ([]string, error) {
	if strings.Contains(entry, "*") {
		return []string{entry}, nil
	}
	if !strings.Contains(entry, "/") {
		return []string{entry}, nil
	}

	ip, ipnet, err := net.ParseCIDR(entry)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
	}
	if ip.To4() == nil {
		return expandIPv6(ipnet)
	}

	ones, bits := ipnet.Mask.Size()
	size := uint64(1) << uint(bits-ones)
	base := ipv4ToUint32(ipnet.IP)

	switch {
	case size >= 65536:
		return bucketPrefixes(base, size, 16), nil
	case size >= 256:
		return bucketPrefixes(base, size, 24), nil
	default:
		return enumerateIPv4(base, size), nil
	}
}

// expandForUnlimitedList expands one unlimited-allow list entry
// ("allow ranges = false"): `a.b.c.*` expands to 256 entries,
// `a.b.*.*` to 65536, and CIDRs are enumerated one address at a time,
// never as `*`; an IPv4 CIDR wider than /16 is rejected.
func expandForUnlimitedList(entry string) ([]string, error) {
	if strings.Contains(entry, "*") {
		return expandWildcardFull(entry)
	}
	if !strings.Contains(entry, "/") {
		return []string{entry}, nil
	}

	ip, ipnet, err := net.ParseCIDR(entry)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
	}
	if ip.To4() == nil {
		return expandIPv6(ipnet)
	}

	ones, bits := ipnet.Mask.Size()
	size := uint64(1) << uint(bits-ones)
	if size > 65536 {
		return nil, fmt.Errorf("CIDR %s is wider than /16, rejected by the expansion policy", entry)
	}
	base := ipv4ToUint32(ipnet.IP)
	return enumerateIPv4(base, size), nil
}

func expandWildcardFull(entry string) ([]string, error) {
	parts := strings.Split(entry, ".")
	if len(parts) != 4 || parts[3] != "*" {
		return nil, fmt.Errorf("invalid wildcard entry %q", entry)
	}
	if parts[2] == "*" {
		a, b := parts[0], parts[1]
		out := make([]string, 0, 65536)
		for c := 0; c < 256; c++ {
			for d := 0; d < 256; d++ {
				out = append(out, fmt.Sprintf("%s.%s.%d.%d", a, b, c, d))
			}
		}
		return out, nil
	}
	a, b, c := parts[0], parts[1], parts[2]
	out := make([]string, 0, 256)
	for d := 0; d < 256; d++ {
		out = append(out, fmt.Sprintf("%s.%s.%s.%d", a, b, c, d))
	}
	return out, nil
}

func ipv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	return binary.BigEndian.Uint32(v4)
}

func uint32ToIPv4(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// bucketPrefixes emits one wildcard entry per bucket of the given
// prefix length (24 → `a.b.c.*`, 16 → `a.b.*.*`) covering [base,
// base+size).
func bucketPrefixes(base uint32, size uint64, prefixLen int) []string {
	bucketSize := uint64(1) << uint(32-prefixLen)
	count := size / bucketSize
	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		addr := uint32ToIPv4(base + uint32(i*bucketSize))
		if prefixLen == 24 {
			out = append(out, fmt.Sprintf("%d.%d.%d.*", addr[0], addr[1], addr[2]))
		} else {
			out = append(out, fmt.Sprintf("%d.%d.*.*", addr[0], addr[1]))
		}
	}
	return out
}

func enumerateIPv4(base uint32, size uint64) []string {
	out := make([]string, 0, size)
	for i := uint64(0); i < size; i++ {
		out = append(out, uint32ToIPv4(base+uint32(i)).String())
	}
	return out
}

func expandIPv6(ipnet *net.IPNet) ([]string, error) {
	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones
	if hostBits > 20 {
		return nil, fmt.Errorf("IPv6 range %s too large to expand (%d host bits)", ipnet.String(), hostBits)
	}
	size := uint64(1) << uint(hostBits)
	if size > maxIPv6Expansion {
		return nil, fmt.Errorf("IPv6 range %s exceeds expansion limit", ipnet.String())
	}

	base := new(big.Int).SetBytes(ipnet.IP.To16())
	out := make([]string, 0, size)
	for i := uint64(0); i < size; i++ {
		cur := new(big.Int).Add(base, new(big.Int).SetUint64(i))
		b := cur.Bytes()
		full := make([]byte, 16)
		copy(full[16-len(b):], b)
		out = append(out, net.IP(full).String())
	}
	return out, nil
}
