package web

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

const testWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func TestDocumentStrategyMatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/did.json", r.URL.Path)
		require.Contains(t, r.Header.Get("Accept"), "application/did+json")
		w.Header().Set("Content-Type", "application/did+json")
		_, _ = w.Write([]byte(`{
			"id": "did:web:example.com",
			"verificationMethod": [
				{"id": "#key-1", "blockchainAccountId": "eip155:1:` + testWallet + `"}
			]
		}`))
	}))
	t.Cleanup(server.Close)

	strategy := &DocumentStrategy{UseHTTP: true}
	domain := strings.TrimPrefix(server.URL, "http://")

	matched, err := strategy.Attempt(context.Background(), domain, strings.ToLower(testWallet))
	require.NoError(t, err)
	require.True(t, matched)
}

func TestDocumentStrategyNoMatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verificationMethod": [{"blockchainAccountId": "eip155:1:0x0000000000000000000000000000000000000001"}]}`))
	}))
	t.Cleanup(server.Close)

	strategy := &DocumentStrategy{UseHTTP: true}
	matched, err := strategy.Attempt(context.Background(), strings.TrimPrefix(server.URL, "http://"), testWallet)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestDocumentStrategyHTTPErrorIsNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	strategy := &DocumentStrategy{UseHTTP: true}
	matched, err := strategy.Attempt(context.Background(), strings.TrimPrefix(server.URL, "http://"), testWallet)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestDocumentStrategyUnreachableHost(t *testing.T) {
	t.Parallel()

	strategy := &DocumentStrategy{UseHTTP: true, Timeout: 200 * time.Millisecond}
	matched, err := strategy.Attempt(context.Background(), "127.0.0.1:1", testWallet)
	require.Error(t, err)
	require.False(t, matched)
}

// startTXTServer runs a loopback DNS server answering TXT queries for name
// with the provided record strings.
func startTXTServer(t *testing.T, name string, records [][]string) string {
	t.Helper()

	fqdn := dns.Fqdn(name)
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		msg := new(dns.Msg)
		msg.SetReply(r)
		msg.Authoritative = true
		if len(r.Question) == 1 && r.Question[0].Qtype == dns.TypeTXT &&
			strings.EqualFold(r.Question[0].Name, fqdn) {
			for _, segments := range records {
				msg.Answer = append(msg.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
					Txt: segments,
				})
			}
		}
		_ = w.WriteMsg(msg)
	})

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &dns.Server{PacketConn: conn, Handler: mux}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })
	return conn.LocalAddr().String()
}

func TestTXTStrategyMatch(t *testing.T) {
	t.Parallel()

	addr := startTXTServer(t, "_omatrust.example.com", [][]string{
		{"v=1 caip10=eip155:1:" + testWallet},
	})
	strategy := &TXTStrategy{Server: addr}

	matched, err := strategy.Attempt(context.Background(), "example.com", strings.ToLower(testWallet))
	require.NoError(t, err)
	require.True(t, matched)
}

func TestTXTStrategyRequiresVersionToken(t *testing.T) {
	t.Parallel()

	addr := startTXTServer(t, "_omatrust.example.com", [][]string{
		{"caip10=eip155:1:" + testWallet},
		{"v=2 caip10=eip155:1:" + testWallet},
	})
	strategy := &TXTStrategy{Server: addr}

	matched, err := strategy.Attempt(context.Background(), "example.com", testWallet)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestTXTStrategyIgnoresOtherNamespaces(t *testing.T) {
	t.Parallel()

	addr := startTXTServer(t, "_omatrust.example.com", [][]string{
		{"v=1 caip10=solana:mainnet:" + testWallet},
	})
	strategy := &TXTStrategy{Server: addr}

	matched, err := strategy.Attempt(context.Background(), "example.com", testWallet)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestTXTStrategySegmentedRecord(t *testing.T) {
	t.Parallel()

	// Long records arrive as multiple 255-byte segments that must be joined
	// before tokenizing.
	value := "v=1 caip10=eip155:1:" + testWallet
	addr := startTXTServer(t, "_omatrust.example.com", [][]string{
		{value[:10], value[10:]},
	})
	strategy := &TXTStrategy{Server: addr}

	matched, err := strategy.Attempt(context.Background(), "example.com", testWallet)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestTXTStrategyResolverErrorIsSurfaced(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	strategy := &TXTStrategy{Server: "127.0.0.1:1"}

	matched, err := strategy.Attempt(ctx, "example.com", testWallet)
	require.Error(t, err)
	require.False(t, matched)
}

func TestStrategiesOrder(t *testing.T) {
	t.Parallel()

	chain := Strategies(nil, "")
	require.Len(t, chain, 2)
	require.Equal(t, MethodDIDJSON, chain[0].Name())
	require.Equal(t, MethodDNSTXT, chain[1].Name())
}
