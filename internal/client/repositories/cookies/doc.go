// Package cookies persists cookies in the cookies table, keyed by
// (name, domain, path). The storage package builds the consent cookie channel
// and an http.CookieJar on top of it.
package cookies
