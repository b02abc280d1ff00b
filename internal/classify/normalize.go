package classify

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters stripped during normalization so that
// share links and plain links resolve to the same sourceKey.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"ref":          true,
	"si":           true,
}

// NormalizeURL canonicalizes a recipe URL for exact-match cache lookup:
// force the https scheme, lowercase host and path, strip tracking query
// params, drop the fragment, strip the trailing slash. Scheme and path
// case never distinguish recipes, so http/https and /Recipe vs /recipe
// variants of one link converge on a single sourceKey. Idempotent.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", eris.Wrapf(err, "classify: parse url %q", raw)
	}
	if u.Host == "" {
		return "", eris.Errorf("classify: url has no host: %q", raw)
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.ToLower(u.Path)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if trackingParams[strings.ToLower(k)] {
				q.Del(k)
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// encodeSorted encodes query values with keys in a stable order so that
// parameter ordering does not produce distinct keys.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
