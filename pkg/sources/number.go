package sources

import (
	"net/url"
	"strconv"
	"strings"
)

// LeadingNumber returns the first run of digits in s, or 0 when there is
// none. "第12话" yields 12.
func LeadingNumber(s string) int {
	start := -1
	for i, c := range s {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoi(s[start:i])
		}
	}
	if start < 0 {
		return 0
	}
	return atoi(s[start:])
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// SecondLevelDomain returns the label left of the top-level domain:
// "www.antbyw.com" yields "antbyw".
func SecondLevelDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// RegistrableDomain returns the last two labels of the host.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
