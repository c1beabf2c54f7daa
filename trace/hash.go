package trace

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// HashArgs fingerprints tool arguments for replay lookup. The value is
// round-tripped through encoding/json, which sorts object keys, so
// logically equal argument sets hash identically. Eight hex chars of MD5;
// a fingerprint, not a security boundary.
func HashArgs(args any) string {
	if args == nil {
		return hashString("null")
	}
	var generic any
	raw, err := json.Marshal(args)
	if err != nil {
		return hashString(fmt.Sprintf("%v", args))
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return hashString(string(raw))
	}
	canonical, _ := json.Marshal(generic)
	return hashString(string(canonical))
}

// ReproducibleRunID derives a stable run id from the session, the user
// message, and a seed, so re-running the same input lands on the same
// journal file.
func ReproducibleRunID(sessionID, userMsg string, seed int) string {
	return hashString(fmt.Sprintf("%s:%s:%d", sessionID, userMsg, seed))
}

func hashString(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)[:8]
}
