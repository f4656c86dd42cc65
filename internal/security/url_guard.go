package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/net/idna"
)

// URLGuard は外部URLの安全性検証と、SSRF防止付きHTTPクライアントの生成を行う。
// カンファレンスのWebサイトURLの検証とWebhook通知の送信に使用する。
type URLGuard interface {
	// ValidateURL はURLを静的に検証する。DNS解決は行わない。
	ValidateURL(rawURL string) error

	// NewSafeClient はプライベートIP等への接続を拒否するHTTPクライアントを生成する。
	// 接続先のIPアドレスはDNS解決後にDialerで検証されるため、DNS再バインディングにも対応する。
	NewSafeClient(timeout time.Duration) *http.Client
}

// allowedSchemes は許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はブロックされるネットワーク範囲。パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// リンクローカル。クラウドのメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// blockedHostnames はブロックされるホスト名。
var blockedHostnames = []string{"localhost", "localhost.localdomain"}

type urlGuard struct {
	allowPrivate bool
}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() *urlGuard {
	return &urlGuard{}
}

// NewPermissiveURLGuard はプライベートアドレスへの接続を許可するURLGuardを生成する。
// テストや社内ネットワーク上のWebhook受信先に限って使用する。
func NewPermissiveURLGuard() *urlGuard {
	return &urlGuard{allowPrivate: true}
}

// ValidateURL はスキーム・ホスト・IPアドレスを検証する。
func (g *urlGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	// 全角表記などの別表記でブロック対象をすり抜けないよう、ASCII形式に正規化してから判定する
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return fmt.Errorf("invalid host %q: %w", host, err)
	}
	if isBlockedHostname(ascii) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// プライベートアドレスを許可する場合はsafeurlを経由しない通常のクライアントを返す。
func (g *urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	if g.allowPrivate {
		return &http.Client{Timeout: timeout}
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
