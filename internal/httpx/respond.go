package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/redisx"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Only user-facing reasons reach the
// body; everything else is logged and answered generically.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, status string, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case orders.IsUserFacing(err):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, orders.ErrInvalidPage), errors.Is(err, orders.ErrInvalidAmount):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, orders.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, orders.ErrConflict), errors.Is(err, redisx.ErrInFlight):
		code, msg = http.StatusConflict, "conflict, please retry"
	case errors.Is(err, orders.ErrUnauthorized):
		code, msg = http.StatusUnauthorized, "Unauthorized"
	}
	if code == http.StatusInternalServerError {
		log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error(status)
	}
	writeJSON(w, code, map[string]string{"status": status, "error": msg})
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func intQuery(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// buyer is only called behind Auth.Middleware.
func buyer(r *http.Request) int64 {
	id, _ := BuyerFrom(r.Context())
	return id
}
