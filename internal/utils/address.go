package utils

import (
	"regexp"
	"strings"
)

var (
	evmHexPattern    = regexp.MustCompile("^[0-9a-fA-F]{40}$")
	tezosAddrPattern = regexp.MustCompile("^(tz1|tz2|tz3|tz4|KT1)[1-9A-HJ-NP-Za-km-z]{33}$")
)

// IsEvmAddress checks for a 20 byte hex address, with or without 0x prefix
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	return evmHexPattern.MatchString(strings.TrimPrefix(strings.ToLower(address), "0x"))
}

// IsTezosAddress checks for an implicit (tz*) or originated (KT1) base58 address
func IsTezosAddress(address string) bool {
	return tezosAddrPattern.MatchString(address)
}

// NormalizeAddress returns the comparison form of a ledger address.
// EVM addresses are lowercased with a 0x prefix; base58 addresses are case
// sensitive and only trimmed.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if IsEvmAddress(address) {
		return "0x" + strings.TrimPrefix(strings.ToLower(address), "0x")
	}
	return address
}

// SameAddress compares two ledger addresses in normalized form
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
