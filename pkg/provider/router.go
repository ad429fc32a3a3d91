package provider

import (
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"
)

// MaxBodySize bounds one pushed invocation
const MaxBodySize = 32 * 1024 * 1024

// Response is the JSON body of every push endpoint reply
type Response struct {
	Provider string `json:"provider"`
	Records  int    `json:"records"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// NewRouter serves push deliveries for HTTP triggered functions. POST / takes
// one invocation payload. GET /healthz answers liveness probes.
func NewRouter(p CloudProvider, l Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(accessLog)

	r.Post("/", func(w http.ResponseWriter, req *http.Request) { PushHandler(w, req, p, l) })
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, &Response{Provider: p.Name(), Status: "OK"})
	})
	return r
}

// PushHandler decodes one invocation and logs its records. Records are
// acknowledged once flushed without failures, so the pushing service retries
// on a 5xx.
func PushHandler(w http.ResponseWriter, req *http.Request, p CloudProvider, l Logger) {
	body, err := io.ReadAll(io.LimitReader(req.Body, MaxBodySize))
	if err != nil {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, &Response{Provider: p.Name(), Status: "ERROR", Error: err.Error()})
		return
	}

	records, err := p.Records(req.Context(), body)
	if err != nil {
		log.WithError(err).WithField("provider", p.Name()).Warn("Failed to decode push payload")
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, &Response{Provider: p.Name(), Status: "ERROR", Error: err.Error()})
		return
	}

	delivered, err := Deliver(l, records)
	if err != nil {
		render.Status(req, http.StatusServiceUnavailable)
		render.JSON(w, req, &Response{Provider: p.Name(), Status: "ERROR", Error: err.Error()})
		return
	}
	if !delivered {
		render.Status(req, http.StatusServiceUnavailable)
		render.JSON(w, req, &Response{Provider: p.Name(), Records: len(records), Status: "PARTIAL"})
		return
	}
	render.JSON(w, req, &Response{Provider: p.Name(), Records: len(records), Status: "OK"})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
		if status/100 != 2 {
			entry.Warn("Request failed")
		} else {
			entry.Debug("Request served")
		}
	})
}
