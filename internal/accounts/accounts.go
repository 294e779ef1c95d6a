package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var (
	ErrNoTokens  = errors.New("no tokens available")
	ErrNoProxies = errors.New("no valid proxies")
)

var defaultPorts = map[string]string{
	"http":    "80",
	"https":   "443",
	"socks5":  "1080",
	"socks5h": "1080",
}

// Account is one unit of work: a token used through one proxy. An empty
// Proxy means a direct connection.
type Account struct {
	Proxy string
	Token string
}

// LoadLines reads the non-empty, non-comment lines of path.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return lines, nil
}

// LoadProxies reads and normalizes the proxy file. A missing file yields no
// proxies, which makes every account connect directly. Invalid entries are
// skipped with a warning; a file with entries but none valid is an error so
// the pool never falls back to direct connections by accident.
func LoadProxies(path string, log *slog.Logger) ([]string, error) {
	lines, err := LoadLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	proxies := make([]string, 0, len(lines))
	for i, line := range lines {
		proxy, err := NormalizeProxy(line)
		if err != nil {
			log.Warn("Skipping invalid proxy",
				slog.String("file", path),
				slog.Int("entry", i+1),
				slog.Any("err", err))
			continue
		}
		proxies = append(proxies, proxy)
	}

	if len(lines) > 0 && len(proxies) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoProxies)
	}

	return proxies, nil
}

func LoadTokens(path string) ([]string, error) {
	tokens, err := LoadLines(path)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	return tokens, nil
}

// NormalizeProxy adds the http scheme and the scheme's default port when
// missing and checks that the result is a proxy URL the transport can dial.
func NormalizeProxy(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		// url.Error quotes the raw URL, credentials included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("invalid proxy: %w", err)
	}

	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() != "" && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	if err := validation.Validate(u.Host, validation.Required, is.DialString); err != nil {
		return "", fmt.Errorf("invalid proxy address: %w", err)
	}

	return u.String(), nil
}

// Pair assigns tokens to proxies. A single token is shared by every proxy
// and several tokens are dealt round-robin. Sessions are keyed by proxy, so
// without proxies only the first token runs, over a direct connection.
func Pair(proxies, tokens []string) ([]Account, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	if len(proxies) == 0 {
		return []Account{{Token: tokens[0]}}, nil
	}

	accounts := make([]Account, 0, len(proxies))
	for i, proxy := range proxies {
		accounts = append(accounts, Account{
			Proxy: proxy,
			Token: tokens[i%len(tokens)],
		})
	}

	return accounts, nil
}

// Load reads both files and pairs them.
func Load(proxiesFile, tokensFile string, log *slog.Logger) ([]Account, error) {
	tokens, err := LoadTokens(tokensFile)
	if err != nil {
		return nil, err
	}

	proxies, err := LoadProxies(proxiesFile, log)
	if err != nil {
		return nil, err
	}

	return Pair(proxies, tokens)
}
