package worker

import (
	"net/url"
	"strings"
)

// MapTarget places ref under scope the way the proxy forwards requests:
// "/a", "./a" and "a" all name scope's path followed by "/a". Absolute refs
// are returned unchanged.
func MapTarget(scope *url.URL, ref *url.URL) *url.URL {
	if ref.IsAbs() {
		out := *ref
		return &out
	}
	if ref.Host != "" {
		return scope.ResolveReference(ref)
	}

	p := ref.Path
	switch {
	case p == "" || p == ".":
		p = "/"
	case strings.HasPrefix(p, "./"):
		p = p[1:]
	case !strings.HasPrefix(p, "/"):
		p = "/" + p
	}

	out := *scope
	out.Path = joinPath(scope.Path, p)
	out.RawPath = ""
	out.RawQuery = ref.RawQuery
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}

// SameOrigin reports whether u shares scope's scheme and host.
func SameOrigin(scope, u *url.URL) bool {
	return strings.EqualFold(scope.Scheme, u.Scheme) && strings.EqualFold(scope.Host, u.Host)
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
