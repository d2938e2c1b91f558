package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies はX-Forwarded-Forの付与を信頼するリバースプロキシのアドレス範囲。
type TrustedProxies []netip.Prefix

// ParseTrustedProxies はIPアドレスまたはCIDR表記の一覧を解析する。
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Contains はipが信頼済みの範囲に含まれるかどうかを返す。
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// PeerIP はTCP接続の相手（RemoteAddrのホスト部）を返す。
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP はリクエストの送信元IPを返す。
// 接続相手が信頼済みプロキシの場合のみX-Forwarded-Forを右から辿り、
// 信頼済みでない最初のアドレスを送信元とする。それ以外はRemoteAddrを使う。
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if len(t) == 0 || !t.Contains(peer) {
		return peer
	}

	hops := forwardedChain(r.Header)
	for i := len(hops) - 1; i >= 0; i-- {
		if !t.Contains(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return peer
}

// ForwardedFor はバックエンドへ渡すX-Forwarded-Forの値を返す。
// 信頼済みプロキシ経由の場合は既存の値に接続相手を追記し、
// そうでなければクライアントが付けた値を捨てて接続相手のみとする。
func (t TrustedProxies) ForwardedFor(r *http.Request) string {
	peer := PeerIP(r)
	if !t.Contains(peer) {
		return peer
	}
	hops := forwardedChain(r.Header)
	return strings.Join(append(hops, peer), ", ")
}

func forwardedChain(h http.Header) []string {
	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		for _, part := range strings.Split(v, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				hops = append(hops, ip)
			}
		}
	}
	return hops
}
