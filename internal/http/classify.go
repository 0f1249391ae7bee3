package httpx

import (
	"net/http"
	"net/url"

	"github.com/52poke/voicenotes/internal/worker"
)

type RequestInfo struct {
	Intercept bool
	URL       string
	Reason    string
}

// ClassifyRequest decides whether the worker answers r. Origin-form request
// targets are mapped under scope the same way the reverse proxy forwards
// them. Absolute-form targets are only answered for scope's own origin;
// anything else goes to the reverse proxy, which rewrites it to the origin.
func ClassifyRequest(r *http.Request, scope *url.URL) RequestInfo {
	if r.Method != http.MethodGet {
		return RequestInfo{Intercept: false, Reason: "method-not-get"}
	}
	if scope == nil {
		return RequestInfo{Intercept: false, Reason: "no-scope"}
	}

	target := worker.MapTarget(scope, r.URL)
	if !worker.IsNetworkScheme(target.Scheme) {
		return RequestInfo{Intercept: false, URL: target.String(), Reason: "scheme-not-network"}
	}
	if r.URL.Host != "" && !worker.SameOrigin(scope, target) {
		return RequestInfo{Intercept: false, URL: target.String(), Reason: "foreign-origin"}
	}

	target.Fragment = ""
	target.RawFragment = ""
	return RequestInfo{Intercept: true, URL: target.String()}
}
