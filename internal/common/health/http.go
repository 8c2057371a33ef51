package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// SetupHttpMux exposes the checker at /health: 204 when healthy, 503 with
// the failure text otherwise.
func SetupHttpMux(mux *http.ServeMux, checker Checker) {
	mux.Handle("/health", &httpHandler{checker: checker})
}

type httpHandler struct {
	checker Checker
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if err := h.checker.Check(); err != nil {
		log.WithError(err).Warn("health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(err.Error())); err != nil {
			log.WithError(err).Error("could not write health check response")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
