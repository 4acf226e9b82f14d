package diaglog

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against map keys and URL
// query parameters.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"token":         true,
	"access_token":  true,
	"password":      true,
	"secret":        true,
	"auth":          true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// Redact returns a copy of v with sensitive map values replaced and
// credentials stripped from URL strings (embedding endpoints, redis
// addresses). Other types are returned unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isSensitive(k) {
				out[k] = redacted
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isSensitive(k) {
				out[k] = redacted
			} else {
				out[k] = redactURL(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	case string:
		return redactURL(val)
	default:
		return v
	}
}

// redactURL masks the password and sensitive query parameters of s when it
// is an absolute URL; anything else is returned as-is.
func redactURL(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			changed = true
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if isSensitive(k) {
				q.Set(k, redacted)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return s
	}
	return u.String()
}
