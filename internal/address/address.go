package address

import (
	"fmt"
	"net/netip"
	"strings"
)

// Family is the address family of an observed or published address.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

// ParseFamily resolves a configuration key to a Family. Both the socket
// constant names used in config files and the short names are accepted.
func ParseFamily(key string) (Family, error) {
	switch strings.ToUpper(strings.TrimSpace(key)) {
	case "AF_INET", "IPV4", "INET", "4":
		return FamilyIPv4, nil
	case "AF_INET6", "IPV6", "INET6", "6":
		return FamilyIPv6, nil
	}
	return FamilyUnknown, fmt.Errorf("unknown address family %q", key)
}

// Version returns 4 or 6, or 0 for an unknown family.
func (f Family) Version() int {
	switch f {
	case FamilyIPv4:
		return 4
	case FamilyIPv6:
		return 6
	}
	return 0
}

// RecordType returns the DNS record type carrying addresses of this family.
func (f Family) RecordType() (string, bool) {
	switch f {
	case FamilyIPv4:
		return "A", true
	case FamilyIPv6:
		return "AAAA", true
	}
	return "", false
}

// Network appends the family suffix to a net package network name,
// e.g. "udp" becomes "udp4" or "udp6".
func (f Family) Network(base string) string {
	switch f {
	case FamilyIPv4:
		return base + "4"
	case FamilyIPv6:
		return base + "6"
	}
	return base
}

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	}
	return "unknown"
}

// FamilyOfRecordType maps an A or AAAA record type back to its Family.
func FamilyOfRecordType(recordType string) Family {
	switch strings.ToUpper(recordType) {
	case "A":
		return FamilyIPv4
	case "AAAA":
		return FamilyIPv6
	}
	return FamilyUnknown
}

// Address is an immutable IP address tagged with its family.
type Address struct {
	family Family
	ip     netip.Addr
}

// New wraps ip. IPv4-mapped IPv6 addresses are unmapped first so they
// compare equal to their plain IPv4 form.
func New(ip netip.Addr) Address {
	ip = ip.Unmap()
	switch {
	case ip.Is4():
		return Address{family: FamilyIPv4, ip: ip}
	case ip.Is6():
		return Address{family: FamilyIPv6, ip: ip.WithZone("")}
	}
	return Address{}
}

// Parse parses the textual form of an IPv4 or IPv6 address.
func Parse(s string) (Address, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return New(ip), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Family() Family { return a.family }

func (a Address) Version() int { return a.family.Version() }

func (a Address) IP() netip.Addr { return a.ip }

func (a Address) IsValid() bool { return a.family != FamilyUnknown && a.ip.IsValid() }

// IsLinkLocal reports whether a is an IPv6 link-local address (fe80::/10).
func (a Address) IsLinkLocal() bool {
	return a.family == FamilyIPv6 && a.ip.IsLinkLocalUnicast()
}

// Equal reports whether a and b have the same family and the same bytes.
func (a Address) Equal(b Address) bool {
	return a.family == b.family && a.ip == b.ip
}

// String returns the canonical (compressed) form of the address.
func (a Address) String() string {
	if !a.ip.IsValid() {
		return ""
	}
	return a.ip.String()
}

// Set is an ordered sequence of addresses, one per resolved interface binding.
type Set []Address

// Loopback returns the sentinel set used before anything has been observed.
// Loopback never equals a publishable address, so the first real observation
// is always a change.
func Loopback() Set {
	return Set{
		New(netip.AddrFrom4([4]byte{127, 0, 0, 1})),
		New(netip.IPv6Loopback()),
	}
}

// Clone returns a copy of s that can be mutated independently.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Lookup returns the first address of family f.
func (s Set) Lookup(f Family) (Address, bool) {
	for _, a := range s {
		if a.family == f {
			return a, true
		}
	}
	return Address{}, false
}

func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for _, a := range s {
		out = append(out, a.String())
	}
	return out
}
