package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DomainPolicyConfig restricts which hosts web search results may come from.
// An empty allow list permits every host that is not disallowed.
type DomainPolicyConfig struct {
	Allow       []string          `mapstructure:"allow" json:"allow"`
	Disallow    []string          `mapstructure:"disallow" json:"disallow"`
	Attribution map[string]string `mapstructure:"attribution" json:"attribution"`
}

// Normalize cleans entries and removes duplicates.
func (c DomainPolicyConfig) Normalize() DomainPolicyConfig {
	norm := c
	norm.Allow = sanitizeDomainList(norm.Allow)
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	if norm.Attribution == nil {
		norm.Attribution = map[string]string{}
	} else {
		normalizedAttr := make(map[string]string, len(norm.Attribution))
		for host, val := range norm.Attribution {
			key := normalizeHost(host)
			if key == "" {
				continue
			}
			normalizedAttr[key] = strings.TrimSpace(val)
		}
		norm.Attribution = normalizedAttr
	}
	return norm
}

// Validate ensures configured policy entries do not conflict.
func (c DomainPolicyConfig) Validate() error {
	norm := c.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("search domain policy conflict: host %q present in both allow and disallow lists", host)
		}
	}
	return nil
}

// Permits reports whether a result URL passes the policy. Subdomains inherit
// the decision of their parent entry.
func (c DomainPolicyConfig) Permits(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if matchesHost(host, c.Disallow) {
		return false
	}
	if len(c.Allow) == 0 {
		return true
	}
	return matchesHost(host, c.Allow)
}

// AttributionFor returns the configured display name for a result URL.
func (c DomainPolicyConfig) AttributionFor(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for h := host; h != ""; {
		if v, ok := c.Attribution[h]; ok {
			return v
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return ""
}

func matchesHost(host string, list []string) bool {
	for _, entry := range list {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		}
	}
	value = strings.TrimPrefix(value, "www.")
	return value
}
