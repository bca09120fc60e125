package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const maskedPassword = "****"

var (
	dsnPasswordPattern = regexp.MustCompile(`(?i)(password\s*=\s*)('(?:[^'\\]|\\.)*'?|\S+)`)
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]*:)[^@\s]*@`)
)

// dsnParam is one key=value pair of a libpq connection string.
type dsnParam struct {
	key   string
	value string
}

func isURLForm(raw string) bool {
	return strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://")
}

// parseDSN splits a key/value connection string, honoring single quotes and
// backslash escapes the way libpq does.
func parseDSN(raw string) ([]dsnParam, error) {
	var params []dsnParam
	s := strings.TrimSpace(raw)
	for s != "" {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return nil, fmt.Errorf("invalid dsn: missing '=' near %q", s)
		}
		key := strings.TrimSpace(s[:eq])
		if key == "" || strings.ContainsAny(key, " \t\r\n'") {
			return nil, fmt.Errorf("invalid dsn: bad key %q", key)
		}
		s = strings.TrimLeft(s[eq+1:], " \t\r\n")

		var value strings.Builder
		if strings.HasPrefix(s, "'") {
			i, closed := 1, false
			for ; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					value.WriteByte(s[i])
					continue
				}
				if s[i] == '\'' {
					closed = true
					break
				}
				value.WriteByte(s[i])
			}
			if !closed {
				return nil, fmt.Errorf("invalid dsn: unterminated quote in %q", key)
			}
			s = s[i+1:]
		} else {
			i := 0
			for ; i < len(s) && !isDSNSpace(s[i]); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				value.WriteByte(s[i])
			}
			s = s[i:]
		}

		params = append(params, dsnParam{key: key, value: value.String()})
		s = strings.TrimLeft(s, " \t\r\n")
	}
	return params, nil
}

func isDSNSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func formatDSN(params []dsnParam) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.key + "=" + quoteDSNValue(p.value)
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\r\n'\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// enforceSSLDSN is EnforceSSL for key/value connection strings. The hosts
// come from pgconn so multi-host and socket defaults match what pgx dials.
func enforceSSLDSN(raw string) (string, error) {
	params, err := parseDSN(raw)
	if err != nil {
		return "", err
	}
	pgCfg, err := pgconn.ParseConfig(raw)
	if err != nil {
		return "", fmt.Errorf("invalid database dsn: %w", err)
	}
	if allLoopback(pgCfg) {
		return raw, nil
	}

	for i, p := range params {
		if p.key != "sslmode" {
			continue
		}
		if secureSSLModes[strings.ToLower(p.value)] {
			return raw, nil
		}
		params[i].value = "require"
		return formatDSN(params), nil
	}
	return formatDSN(append(params, dsnParam{key: "sslmode", value: "require"})), nil
}

func allLoopback(cfg *pgconn.Config) bool {
	if !IsLoopbackHost(cfg.Host) {
		return false
	}
	for _, fb := range cfg.Fallbacks {
		if !IsLoopbackHost(fb.Host) {
			return false
		}
	}
	return true
}

func maskDSN(raw string) string {
	params, err := parseDSN(raw)
	if err != nil {
		return dsnPasswordPattern.ReplaceAllString(raw, "${1}"+maskedPassword)
	}
	masked := false
	for i := range params {
		if params[i].key == "password" {
			params[i].value = maskedPassword
			masked = true
		}
	}
	if !masked {
		return raw
	}
	return formatDSN(params)
}

// URLPassword returns the password embedded in a connection URL or DSN.
func URLPassword(raw string) string {
	if isURLForm(raw) {
		u, err := url.Parse(raw)
		if err != nil || u.User == nil {
			return ""
		}
		pw, _ := u.User.Password()
		return pw
	}
	params, err := parseDSN(raw)
	if err != nil {
		return ""
	}
	for _, p := range params {
		if p.key == "password" {
			return p.value
		}
	}
	return ""
}
