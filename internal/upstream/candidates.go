// Package upstream issues requests against the provider API, walking an
// ordered list of candidate base URLs until one of them answers.
package upstream

import "strings"

// Candidates builds the failover list: primary first, then every fallback
// that is not already present. The result is never mutated after construction
// and is safe to share across requests.
func Candidates(base string, fallbacks []string) []string {
	seen := map[string]bool{}
	urls := make([]string, 0, 1+len(fallbacks))
	for _, u := range append([]string{base}, fallbacks...) {
		u = strings.TrimSpace(strings.TrimSuffix(u, "/"))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// WebSocketCandidates rewrites the HTTP failover list to its WebSocket
// equivalent.
func WebSocketCandidates(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		switch {
		case strings.HasPrefix(u, "https://"):
			u = "wss://" + strings.TrimPrefix(u, "https://")
		case strings.HasPrefix(u, "http://"):
			u = "ws://" + strings.TrimPrefix(u, "http://")
		}
		out[i] = u
	}
	return out
}
