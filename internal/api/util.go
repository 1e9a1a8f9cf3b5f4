package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"

	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
)

const maxBody = 1 << 20

type errBody struct {
	Error        string    `json:"error"`
	Code         errs.Code `json:"code"`
	RetryAfterMs int64     `json:"retryAfterMs,omitempty"`
}

// writeSvcErr maps a service error through the errs taxonomy. Internal causes are logged, not echoed.
func writeSvcErr(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	body := errBody{Error: string(code), Code: code}
	if ra := errs.RetryAfterOf(err); ra > 0 {
		body.RetryAfterMs = ra.Milliseconds()
		w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(ra), 10))
	}
	var e *errs.Error
	switch {
	case code == errs.Internal || code == errs.TransientExternalFailure:
		logging.Error(r.Context(), "request failed", zap.String("path", r.URL.Path), zap.Error(err))
	case errors.As(err, &e) && e.Msg != "":
		body.Error = e.Msg
	}
	writeStatus(w, status, body)
}

func ceilSeconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.Invalid, err, "malformed json body")
	}
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.New(errs.Invalid, "bad id %q", raw)
	}
	return id, nil
}

func requireTask(taskID int64) error {
	if taskID <= 0 {
		return errs.New(errs.Invalid, "taskId required")
	}
	return nil
}
