// Package room derives the deterministic identifier of a two-party chat room.
package room

import "strings"

const prefix = "chat_"

// ID returns "chat_" + min(a,b) + "_" + max(a,b) under byte-wise string order,
// so ID(a, b) == ID(b, a).
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return prefix + a + "_" + b
}

// Parse splits a room id back into its two participants in canonical order.
// User ids never contain '_'.
func Parse(id string) (a, b string, ok bool) {
	rest, found := strings.CutPrefix(id, prefix)
	if !found {
		return "", "", false
	}
	a, b, found = strings.Cut(rest, "_")
	if !found || a == "" || b == "" || strings.Contains(b, "_") || a > b {
		return "", "", false
	}
	return a, b, true
}

// Has reports whether userID participates in the room.
func Has(id, userID string) bool {
	a, b, ok := Parse(id)
	return ok && (userID == a || userID == b)
}

// Other returns the counterpart of userID in the room.
func Other(id, userID string) (string, bool) {
	a, b, ok := Parse(id)
	switch {
	case !ok:
		return "", false
	case userID == a:
		return b, true
	case userID == b:
		return a, true
	}
	return "", false
}

// Personal is the broadcast group for direct notifications to one user.
func Personal(userID string) string {
	return "user:" + userID
}
