package observer

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/miekg/dns"
)

const (
	DefaultOpenDNSServer = "resolver1.opendns.com:53"
	DefaultOpenDNSName   = "myip.opendns.com."
)

// DNSResolver learns the public address by asking a resolver that answers a
// well-known name with the querying client's address.
type DNSResolver struct {
	server  string
	name    string
	timeout time.Duration
}

func NewDNSResolver(server, name string) *DNSResolver {
	if server == "" {
		server = DefaultOpenDNSServer
	}
	if name == "" {
		name = DefaultOpenDNSName
	}
	return &DNSResolver{server: server, name: dns.Fqdn(name), timeout: 5 * time.Second}
}

func (r *DNSResolver) Resolve(ctx context.Context, family address.Family) (address.Address, error) {
	var qtype uint16
	switch family {
	case address.FamilyIPv4:
		qtype = dns.TypeA
	case address.FamilyIPv6:
		qtype = dns.TypeAAAA
	default:
		return address.Address{}, fmt.Errorf("unsupported family %s", family)
	}

	m := new(dns.Msg)
	m.SetQuestion(r.name, qtype)
	m.RecursionDesired = false

	// the query has to leave over the family being asked about
	client := &dns.Client{Net: family.Network("udp"), Timeout: r.timeout}
	in, _, err := client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return address.Address{}, fmt.Errorf("query %s at %s: %w", r.name, r.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return address.Address{}, fmt.Errorf("query %s at %s: rcode %s", r.name, r.server, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		var ip []byte
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if a := address.New(addr); a.Family() == family {
			return a, nil
		}
	}
	return address.Address{}, fmt.Errorf("%w: no %s answer for %s", ErrNoAddress, dns.TypeToString[qtype], r.name)
}
