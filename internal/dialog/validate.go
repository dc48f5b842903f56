package dialog

import (
	"net"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxHostLen     = 253
	maxLabelLen    = 63
	maxUsernameLen = 64
)

// ParseHost splits "host", "host:port", "[v6]" or "[v6]:port".
func ParseHost(input string, defaultPort int) (string, int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", 0, invalid("host", "must not be empty")
	}

	host, portStr := s, ""
	switch {
	case strings.HasPrefix(s, "["):
		end := strings.Index(s, "]")
		if end < 0 {
			return "", 0, invalid("host", "missing closing bracket")
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, invalid("host", "unexpected text after address")
			}
			portStr = rest[1:]
		}
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return "", 0, invalid("host", "%q is not an IPv6 address", host)
		}
	case strings.Count(s, ":") == 1:
		host, portStr, _ = strings.Cut(s, ":")
	case strings.Count(s, ":") > 1:
		if net.ParseIP(s) == nil {
			return "", 0, invalid("host", "%q is not a valid address", s)
		}
		return s, defaultPort, nil
	}

	port := defaultPort
	if portStr != "" || strings.HasSuffix(s, ":") {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return "", 0, invalid("port", "must be a number between 1 and 65535")
		}
		port = p
	}
	if !strings.Contains(host, ":") {
		if err := validHostname(host); err != nil {
			return "", 0, err
		}
	}
	return host, port, nil
}

func validHostname(host string) error {
	if host == "" {
		return invalid("host", "must not be empty")
	}
	if len(host) > maxHostLen {
		return invalid("host", "longer than %d characters", maxHostLen)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > maxLabelLen {
			return invalid("host", "bad label in %q", host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return invalid("host", "label %q starts or ends with a hyphen", label)
		}
		for _, r := range label {
			if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
				return invalid("host", "label %q contains %q", label, r)
			}
		}
	}
	return nil
}

// ValidateUsername checks a remote login name.
func ValidateUsername(input string) (string, error) {
	s := strings.TrimSpace(input)
	switch {
	case s == "":
		return "", invalid("username", "must not be empty")
	case len(s) > maxUsernameLen:
		return "", invalid("username", "longer than %d characters", maxUsernameLen)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", invalid("username", "must not contain whitespace")
		}
	}
	return s, nil
}
