package observer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/miekg/dns"
)

func TestWebResolver(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		family   address.Family
		expected string
		wantErr  bool
	}{
		{
			name:     "ipv4 body",
			status:   http.StatusOK,
			body:     "198.51.100.5",
			family:   address.FamilyIPv4,
			expected: "198.51.100.5",
		},
		{
			name:     "trailing newline",
			status:   http.StatusOK,
			body:     "2001:db8::1\n",
			family:   address.FamilyIPv6,
			expected: "2001:db8::1",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    "oops",
			family:  address.FamilyIPv4,
			wantErr: true,
		},
		{
			name:    "garbage body",
			status:  http.StatusOK,
			body:    "<html>hello</html>",
			family:  address.FamilyIPv4,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			wr := NewWebResolver(srv.URL+"/v4", srv.URL+"/v6", srv.Client())
			got, err := wr.Resolve(context.Background(), tt.family)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			wantPath := "/v4"
			if tt.family == address.FamilyIPv6 {
				wantPath = "/v6"
			}
			if gotPath != wantPath {
				t.Errorf("requested %q, want %q", gotPath, wantPath)
			}
			if !tt.wantErr && got.String() != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestWebResolverNoURL(t *testing.T) {
	wr := NewWebResolver("https://api.ipify.org", "", nil)
	if _, err := wr.Resolve(context.Background(), address.FamilyIPv6); err == nil {
		t.Fatal("expected error for family without lookup url")
	}
}

// startDNSServer serves handler on a loopback UDP port and returns its address.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
	tests := []struct {
		name     string
		answer   func(q dns.Question) []dns.RR
		rcode    int
		expected string
		wantErr  error
	}{
		{
			name: "a answer",
			answer: func(q dns.Question) []dns.RR {
				return []dns.RR{&dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET},
					A:   net.ParseIP("198.51.100.5"),
				}}
			},
			rcode:    dns.RcodeSuccess,
			expected: "198.51.100.5",
		},
		{
			name: "only aaaa answer",
			answer: func(q dns.Question) []dns.RR {
				return []dns.RR{&dns.AAAA{
					Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET},
					AAAA: net.ParseIP("2001:db8::1"),
				}}
			},
			rcode:   dns.RcodeSuccess,
			wantErr: ErrNoAddress,
		},
		{
			name:   "nxdomain",
			answer: func(q dns.Question) []dns.RR { return nil },
			rcode:  dns.RcodeNameError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName string
			server := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
				m := new(dns.Msg)
				m.SetRcode(r, tt.rcode)
				gotName = r.Question[0].Name
				m.Answer = tt.answer(r.Question[0])
				w.WriteMsg(m)
			})

			resolver := NewDNSResolver(server, "")
			got, err := resolver.Resolve(context.Background(), address.FamilyIPv4)

			if gotName != DefaultOpenDNSName {
				t.Errorf("queried %q, want %q", gotName, DefaultOpenDNSName)
			}
			switch {
			case tt.rcode != dns.RcodeSuccess:
				if err == nil {
					t.Fatal("expected error for non-success rcode")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.String() != tt.expected {
					t.Errorf("got %s, want %s", got, tt.expected)
				}
			}
		})
	}
}

func TestDNSResolverUnknownFamily(t *testing.T) {
	resolver := NewDNSResolver("127.0.0.1:1", "")
	if _, err := resolver.Resolve(context.Background(), address.FamilyUnknown); err == nil {
		t.Fatal("expected error for unknown family")
	}
}
