package observer

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/address"
)

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebResolver asks a plain-text "what is my IP" service such as ipify. Each
// family has its own endpoint because the service answers with the address
// the request arrived from.
type WebResolver struct {
	urls map[address.Family]string
	http Httper
}

func NewWebResolver(ipv4URL, ipv6URL string, httpClient Httper) *WebResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebResolver{
		urls: map[address.Family]string{
			address.FamilyIPv4: ipv4URL,
			address.FamilyIPv6: ipv6URL,
		},
		http: httpClient,
	}
}

func (wr *WebResolver) Resolve(ctx context.Context, family address.Family) (address.Address, error) {
	u := wr.urls[family]
	if u == "" {
		return address.Address{}, fmt.Errorf("no lookup service configured for %s", family)
	}

	// bound the lookup even when the caller's context has no deadline
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return address.Address{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := wr.http.Do(req)
	if err != nil {
		return address.Address{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return address.Address{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	a, err := address.Parse(strings.TrimSpace(line))
	if err != nil {
		return address.Address{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return a, nil
}
