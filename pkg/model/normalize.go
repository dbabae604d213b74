package model

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Field normalizers and validators shared by the schemas. Normalizers run
// before validators; both operate on already-trimmed cell values.

var macSeparators = regexp.MustCompile(`[:\-\.]`)

// NormalizeMAC canonicalizes a MAC address to colon-separated uppercase
// (AA:BB:CC:DD:EE:FF). Accepts colon, dash, dot separated, or bare hex.
func NormalizeMAC(s string) (string, error) {
	hex := macSeparators.ReplaceAllString(strings.TrimSpace(s), "")
	hex = strings.ToUpper(hex)
	if len(hex) != 12 {
		return "", fmt.Errorf("invalid MAC address %q", s)
	}
	for _, c := range hex {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return "", fmt.Errorf("invalid MAC address %q", s)
		}
	}
	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = hex[i*2 : i*2+2]
	}
	return strings.Join(parts, ":"), nil
}

// NormalizeFQDN lowercases a fully qualified domain name and strips a
// trailing dot.
func NormalizeFQDN(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

// ValidateCIDR checks that the value is a well-formed IPv4 or IPv6 prefix
// in canonical form (network address matches the mask).
func ValidateCIDR(s string) error {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return fmt.Errorf("invalid CIDR %q", s)
	}
	if !ip.Equal(ipnet.IP) {
		return fmt.Errorf("CIDR %q is not a network address (expected %s)", s, ipnet.String())
	}
	return nil
}

// ValidateIP checks that the value parses as an IPv4 or IPv6 address.
func ValidateIP(s string) error {
	if _, err := netip.ParseAddr(s); err != nil {
		return fmt.Errorf("invalid IP address %q", s)
	}
	return nil
}

// ValidateIPv4 checks that the value parses as an IPv4 address.
func ValidateIPv4(s string) error {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("invalid IPv4 address %q", s)
	}
	return nil
}

// ValidateIPv6 checks that the value parses as an IPv6 address.
func ValidateIPv6(s string) error {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return fmt.Errorf("invalid IPv6 address %q", s)
	}
	return nil
}

// ValidateFQDN checks basic syntactic shape of a domain name.
func ValidateFQDN(s string) error {
	if s == "" || len(s) > 253 {
		return fmt.Errorf("invalid FQDN %q", s)
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid FQDN %q", s)
		}
	}
	return nil
}

// ValidateOptionCode checks a DHCP option code for range 1-254.
func ValidateOptionCode(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 254 {
		return fmt.Errorf("DHCP option code %q out of range 1-254", s)
	}
	return nil
}

// ValidateInt checks that the value is a base-10 integer.
func ValidateInt(s string) error {
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	return nil
}

// ValidateUint checks that the value is a non-negative base-10 integer.
func ValidateUint(s string) error {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return fmt.Errorf("invalid non-negative integer %q", s)
	}
	return nil
}

// ValidateBool checks for true/false (case-insensitive).
func ValidateBool(s string) error {
	switch strings.ToLower(s) {
	case "true", "false":
		return nil
	}
	return fmt.Errorf("invalid boolean %q", s)
}

// ServerScopes are the accepted deployment-option server scopes.
var ServerScopes = []string{"server-wide", "service-wide", "client-wide", "all-servers"}

// ValidateServerScope checks a deployment-option server scope.
func ValidateServerScope(s string) error {
	for _, scope := range ServerScopes {
		if s == scope {
			return nil
		}
	}
	return fmt.Errorf("invalid server scope %q (want one of %s)", s, strings.Join(ServerScopes, ", "))
}

// ValidateEnum returns a validator accepting only the given values.
func ValidateEnum(values ...string) func(string) error {
	return func(s string) error {
		for _, v := range values {
			if s == v {
				return nil
			}
		}
		return fmt.Errorf("invalid value %q (want one of %s)", s, strings.Join(values, ", "))
	}
}

// PrefixContains reports whether the outer CIDR fully contains the inner
// CIDR. Both must be valid prefixes of the same family.
func PrefixContains(outer, inner string) bool {
	_, outerNet, err := net.ParseCIDR(outer)
	if err != nil {
		return false
	}
	_, innerNet, err := net.ParseCIDR(inner)
	if err != nil {
		return false
	}
	if err := cidr.VerifyNoOverlap([]*net.IPNet{innerNet}, outerNet); err != nil {
		// VerifyNoOverlap errors when inner is not contained by outer.
		return false
	}
	outerOnes, _ := outerNet.Mask.Size()
	innerOnes, _ := innerNet.Mask.Size()
	return innerOnes >= outerOnes
}

// PrefixContainsAddr reports whether the CIDR contains the given address.
func PrefixContainsAddr(prefixStr, addr string) bool {
	p, err := netip.ParsePrefix(prefixStr)
	if err != nil {
		return false
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return p.Contains(a)
}

// PrefixLen returns the prefix length of a CIDR, or -1 if invalid.
func PrefixLen(prefixStr string) int {
	p, err := netip.ParsePrefix(prefixStr)
	if err != nil {
		return -1
	}
	return p.Bits()
}

// AddressCount returns the number of addresses in a CIDR, capped at 1<<63-1.
func AddressCount(prefixStr string) uint64 {
	_, ipnet, err := net.ParseCIDR(prefixStr)
	if err != nil {
		return 0
	}
	return cidr.AddressCount(ipnet)
}
