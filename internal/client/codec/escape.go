package codec

import (
	"net/url"
	"strings"
)

var escaper = strings.NewReplacer("%", "%25", ",", "%2C", ":", "%3A")

// escape protects the framing characters of the compact form.
func escape(s string) string {
	return escaper.Replace(s)
}

// unescape reverses escape; values that are not valid escapes are kept raw.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
