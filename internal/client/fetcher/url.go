package fetcher

import (
	"net/url"
	"regexp"
	"strings"
)

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

// BuildURL joins base and path into an absolute URL. A relative base is
// resolved against origin; a path that is itself absolute is used as is.
// Duplicate slashes in the path are collapsed.
func BuildURL(base, origin, path string, query url.Values) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return withQuery(u, query), nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !b.IsAbs() {
		if origin == "" {
			return "", ValidationError("relative backend URL %q needs an origin", base)
		}
		o, err := url.Parse(origin)
		if err != nil || !o.IsAbs() {
			return "", ValidationError("origin %q is not an absolute URL", origin)
		}
		b = o.ResolveReference(&url.URL{Path: "/" + strings.TrimPrefix(b.Path, "/"), RawQuery: b.RawQuery})
	}

	p, rawQuery, _ := strings.Cut(path, "?")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	joined := *b
	joined.Path = duplicateSlashes.ReplaceAllString(b.Path+"/"+p, "/")
	if len(joined.Path) > 1 {
		joined.Path = strings.TrimSuffix(joined.Path, "/")
	}
	joined.RawPath = ""
	if rawQuery != "" {
		joined.RawQuery = rawQuery
	}
	return withQuery(&joined, query), nil
}

func withQuery(u *url.URL, query url.Values) string {
	if len(query) == 0 {
		return u.String()
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
