package apiclient

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// CacheKey hashes an endpoint and its query parameters. Parameters are sorted
// by key so the result does not depend on insertion order.
func CacheKey(endpoint string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range params[k] {
			pairs = append(pairs, k+"="+v)
		}
	}

	sum := sha256.Sum256([]byte(endpoint + "?" + strings.Join(pairs, "&")))
	return hex.EncodeToString(sum[:])
}
