package kvsync

// sensitiveKeys is the fixed allowlist of keys holding credentials. These
// keys stay in the local cache of the context that wrote them: they are
// never persisted remotely and never broadcast to other contexts.
var sensitiveKeys = map[string]struct{}{
	"auth/admin-credentials": {},
	"auth/staff-credentials": {},
	"auth/session":           {},
}

// IsSensitive reports whether key is in the sensitive-key allowlist
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[key]
	return ok
}
