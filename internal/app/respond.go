package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/logging"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/observability"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, errBadRequest),
		errors.Is(err, gamification.ErrInvalidPoints),
		errors.Is(err, gamification.ErrUserRequired),
		errors.Is(err, gamification.ErrSourceMissing),
		errors.Is(err, notify.ErrInvalidPhone),
		errors.Is(err, notify.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail - JSON-ошибка; 5xx уходят в лог и sentry, клиенту текст не раскрываем.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msg = validationMessage(verrs)
	}
	if code >= http.StatusInternalServerError {
		tags := map[string]string{"path": r.URL.Path}
		if id, ok := ctxutil.RequestID(r.Context()); ok {
			tags["request_id"] = id
		}
		observability.CaptureErrWith(err, tags)
		logging.FromContext(r.Context(), a.Log).Error("handler failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("field '%s' failed on '%s'", e.Field(), e.Tag()))
	}
	return strings.Join(parts, "; ")
}

// decode - JSON тела + validator; любые ошибки = 400.
func (a *api) decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return a.validate.Struct(dst)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s", errBadRequest, name)
	}
	return id, nil
}

// intQuery - ?name=N в пределах [1, limit]; пусто - def.
func intQuery(r *http.Request, name string, def, limit int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad %s", errBadRequest, name)
	}
	if n > limit {
		n = limit
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
