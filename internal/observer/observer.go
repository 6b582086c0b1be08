// Package observer reads the addresses currently bound to the configured
// interfaces and picks one publishable address per binding.
package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/evanofslack/dh-dyn-update/internal/metrics"
)

// Sentinel interface names that select an external discovery service
// instead of a local interface.
const (
	SentinelIpify   = "-ipify.org"
	SentinelOpenDNS = "-opendns.com"
)

var ErrNoAddress = errors.New("no address assigned")

// Binding ties an address family to an interface name or sentinel.
type Binding struct {
	Family    address.Family
	Interface string
}

// Spec is the ordered list of bindings to observe.
type Spec []Binding

// InterfaceSource lists the addresses bound to a named interface.
type InterfaceSource interface {
	InterfaceAddrs(name string) ([]netip.Prefix, error)
}

// Resolver discovers an address of the given family from outside the host.
type Resolver interface {
	Resolve(ctx context.Context, family address.Family) (address.Address, error)
}

type Observer struct {
	spec      Spec
	source    InterfaceSource
	resolvers map[string]Resolver
	metrics   *metrics.Metrics
}

type Option func(*Observer)

func WithInterfaceSource(src InterfaceSource) Option {
	return func(o *Observer) { o.source = src }
}

// WithResolver registers r for bindings whose interface is sentinel.
func WithResolver(sentinel string, r Resolver) Option {
	return func(o *Observer) { o.resolvers[sentinel] = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Observer) { o.metrics = m }
}

func New(spec Spec, opts ...Option) *Observer {
	o := &Observer{
		spec:      spec,
		source:    SystemInterfaces{},
		resolvers: make(map[string]Resolver),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks that every non-sentinel binding names an interface known
// to the host.
func (o *Observer) Validate() error {
	for _, b := range o.spec {
		if _, ok := o.resolvers[b.Interface]; ok {
			continue
		}
		if _, err := o.source.InterfaceAddrs(b.Interface); err != nil {
			return fmt.Errorf("%s interface %s: %w", b.Family, b.Interface, err)
		}
	}
	return nil
}

// Observe returns one address per binding that could be resolved, in binding
// order. Bindings that fail are logged and left out.
func (o *Observer) Observe(ctx context.Context) address.Set {
	set := make(address.Set, 0, len(o.spec))
	for _, b := range o.spec {
		a, err := o.observe(ctx, b)
		o.observed(b.Family, err == nil)
		if err != nil {
			slog.Warn("Could not get address", "family", b.Family.String(), "interface", b.Interface, "error", err)
			continue
		}
		slog.Info("Current address", "family", b.Family.String(), "interface", b.Interface, "address", a.String())
		set = append(set, a)
	}
	return set
}

func (o *Observer) observe(ctx context.Context, b Binding) (address.Address, error) {
	if r, ok := o.resolvers[b.Interface]; ok {
		a, err := r.Resolve(ctx, b.Family)
		if err != nil {
			return address.Address{}, err
		}
		if a.Family() != b.Family || a.IsLinkLocal() {
			return address.Address{}, fmt.Errorf("%w: lookup returned %s", ErrNoAddress, a)
		}
		return a, nil
	}

	prefixes, err := o.source.InterfaceAddrs(b.Interface)
	if err != nil {
		return address.Address{}, err
	}
	return Select(prefixes, b.Family)
}

func (o *Observer) observed(family address.Family, success bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncObservation(family.String(), success)
}

// Select picks the address to publish for family: the first IPv4 address, or
// the first IPv6 address outside fe80::/10.
func Select(prefixes []netip.Prefix, family address.Family) (address.Address, error) {
	for _, p := range prefixes {
		a := address.New(p.Addr())
		if a.Family() != family {
			continue
		}
		if a.IsLinkLocal() {
			slog.Debug("Skipping link-local address", "address", a.String())
			continue
		}
		return a, nil
	}
	return address.Address{}, fmt.Errorf("%w for %s", ErrNoAddress, family)
}

// SystemInterfaces queries the operating system.
type SystemInterfaces struct{}

func (SystemInterfaces) InterfaceAddrs(name string) ([]netip.Prefix, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("error getting interface %s by name: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("error looking up addresses for interface %s: %w", name, err)
	}

	var errs []error
	prefixes := make([]netip.Prefix, 0, len(addrs))
	for _, addr := range addrs {
		// addr: ip+net:192.168.86.253/24
		// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
		p, err := netip.ParsePrefix(addr.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("error parsing local ip %s for interface %s: %w", addr.String(), name, err))
			continue
		}
		prefixes = append(prefixes, p)
	}
	if len(prefixes) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return prefixes, nil
}
