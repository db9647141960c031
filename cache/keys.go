package cache

import "strings"

// Namespace is the first segment of every key.
type Namespace string

const (
	NamespaceOTP       Namespace = "otp"
	NamespaceBlacklist Namespace = "blacklist"
	NamespaceRateLimit Namespace = "ratelimit"
	NamespaceCache     Namespace = "cache"
)

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key joins ns and parts with ':'. Colons and percent signs inside parts are
// escaped so a crafted identifier cannot reach a different key.
func Key(ns Namespace, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(ns))
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(keyEscaper.Replace(p))
	}
	return b.String()
}
