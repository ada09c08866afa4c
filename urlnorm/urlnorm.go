// Package urlnorm produces the canonical form of a candidate URL used as the
// exact-duplicate key. Normalization is driven by a per-domain rule table so
// provider quirks live in data, not in branching code.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Rule describes how URLs on one host (or host suffix) are normalized.
type Rule struct {
	// Host matches exactly, or as a suffix when it starts with ".".
	Host string `yaml:"host"`
	// KeepParams lists query parameters that are meaningful for identity and
	// must survive normalization.
	KeepParams []string `yaml:"keep_params"`
	// PreserveQuery keeps the entire query string. Set for image services
	// whose URLs carry per-request signatures: stripping them would falsely
	// merge distinct images, so the whole query participates in the hash.
	PreserveQuery bool `yaml:"preserve_query"`
}

// Normalizer applies the rule table.
type Normalizer struct {
	rules []Rule
}

// New creates a Normalizer from explicit rules on top of the built-in
// defaults. Later rules win over earlier ones for the same host.
func New(extra []Rule) *Normalizer {
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Normalizer{rules: rules}
}

// Tracking parameters stripped everywhere unless a rule preserves the query.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "utm_id": {}, "fbclid": {}, "gclid": {}, "msclkid": {},
	"mc_cid": {}, "mc_eid": {}, "igshid": {}, "ref": {}, "ref_src": {},
	"cmpid": {}, "ncid": {}, "_ga": {},
}

// Hosts whose image URLs are signed per request. The signature is part of the
// image's identity for dedup purposes.
var defaultRules = []Rule{
	{Host: "images.unsplash.com", PreserveQuery: true},
	{Host: ".cloudfront.net", PreserveQuery: true},
	{Host: ".googleusercontent.com", PreserveQuery: true},
	{Host: ".wp.com", PreserveQuery: true},
	{Host: ".twimg.com", KeepParams: []string{"format", "name"}},
	{Host: ".ytimg.com", KeepParams: nil},
}

// Normalize canonicalizes a URL: lowercase scheme/host, https upgrade for
// protocol-relative inputs handled upstream, default ports dropped, fragment
// dropped, query filtered per the rule table with surviving parameters sorted.
func (n *Normalizer) Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPort(u.Scheme) {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	u.Fragment = ""

	rule := n.match(host)
	if rule != nil && rule.PreserveQuery {
		return u.String()
	}

	q := u.Query()
	kept := url.Values{}
	for key, vals := range q {
		lower := strings.ToLower(key)
		if _, tracking := trackingParams[lower]; tracking {
			continue
		}
		if rule != nil && len(rule.KeepParams) > 0 && !contains(rule.KeepParams, lower) {
			continue
		}
		kept[key] = vals
	}
	u.RawQuery = encodeSorted(kept)

	return u.String()
}

// Hash returns the hex SHA-256 of the normalized URL, the exact-duplicate key.
func (n *Normalizer) Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(n.Normalize(rawURL)))
	return hex.EncodeToString(sum[:])
}

// match returns the most specific rule for a host, exact hosts beating
// suffix rules, later registrations beating earlier ones.
func (n *Normalizer) match(host string) *Rule {
	var found *Rule
	foundSuffix := false
	for i := range n.rules {
		r := &n.rules[i]
		if strings.HasPrefix(r.Host, ".") {
			if host == strings.TrimPrefix(r.Host, ".") || strings.HasSuffix(host, r.Host) {
				if found == nil || foundSuffix {
					found = r
					foundSuffix = true
				}
			}
		} else if host == r.Host {
			found = r
			foundSuffix = false
		}
	}
	return found
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// encodeSorted renders query values with deterministic key order so the hash
// is stable across map iteration.
func encodeSorted(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, val := range v[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}
