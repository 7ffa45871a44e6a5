package web

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// txtLabel is the registry-owned DNS label queried under the claimed domain.
const txtLabel = "_omatrust"

// TXTStrategy resolves TXT records at _omatrust.<domain> and accepts the
// domain when an eligible record names the claimed wallet. A record is
// eligible only when one of its whitespace-separated tokens is exactly v=1.
type TXTStrategy struct {
	Client *dns.Client

	// Server overrides the resolver address (host:port). When empty the
	// system resolver from /etc/resolv.conf is used.
	Server string
}

// Name implements Strategy.
func (s *TXTStrategy) Name() string { return MethodDNSTXT }

// Attempt implements Strategy. Exchange failures are surfaced so callers can
// retry them; a response without a matching record is a plain miss.
func (s *TXTStrategy) Attempt(ctx context.Context, domain, wallet string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(txtLabel+"."+domain), dns.TypeTXT)

	client := s.Client
	if client == nil {
		client = new(dns.Client)
	}
	resp, _, err := client.ExchangeContext(ctx, msg, s.resolver())
	if err != nil {
		return false, fmt.Errorf("txt lookup for %s: %w", domain, err)
	}
	if resp == nil {
		return false, nil
	}
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		if recordNamesWallet(strings.Join(txt.Txt, ""), wallet) {
			return true, nil
		}
	}
	return false, nil
}

func recordNamesWallet(record, wallet string) bool {
	tokens := strings.Fields(record)
	eligible := false
	var values []string
	for _, token := range tokens {
		if token == "v=1" {
			eligible = true
			continue
		}
		if value, found := strings.CutPrefix(token, "caip10="); found {
			values = append(values, value)
		}
	}
	if !eligible {
		return false
	}
	for _, value := range values {
		if matchCAIP10(value, wallet) {
			return true
		}
	}
	return false
}

func (s *TXTStrategy) resolver() string {
	if s.Server != "" {
		return s.Server
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return net.JoinHostPort("127.0.0.1", "53")
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}
