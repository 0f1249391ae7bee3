package httpx

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/52poke/voicenotes/internal/metrics"
	"github.com/52poke/voicenotes/internal/worker"
)

const cacheStatusHeader = "X-Voicenotes-Cache"

// Handler routes requests through the worker once it controls clients and
// forwards everything else to the origin untouched.
type Handler struct {
	Worker   *worker.Worker
	Strategy worker.Strategy
	Scope    *url.URL
	Proxy    *httputil.ReverseProxy
}

func NewHandler(originURL string, w *worker.Worker) (*Handler, error) {
	u, err := url.Parse(originURL)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	return &Handler{
		Worker:   w,
		Strategy: w.CacheFirst,
		Scope:    u,
		Proxy:    proxy,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Worker.Controlling() {
		h.passThrough(w, r, "not-controlling")
		return
	}

	info := ClassifyRequest(r, h.Scope)
	if !info.Intercept {
		h.passThrough(w, r, info.Reason)
		return
	}

	resp, err := h.Strategy(r.Context(), worker.Request{
		Method: r.Method,
		URL:    info.URL,
		Header: r.Header.Clone(),
	})
	if err != nil {
		log.Printf("httpx: %s %s: %v", r.Method, info.URL, err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	writeResponse(w, resp)
}

func (h *Handler) passThrough(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.PassThroughTotal.WithLabelValues(reason).Inc()
	h.Proxy.ServeHTTP(w, r)
}

func writeResponse(w http.ResponseWriter, resp worker.Response) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(cacheStatusHeader, strings.ToUpper(string(resp.Source)))
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
