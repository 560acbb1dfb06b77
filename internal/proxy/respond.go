package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

const (
	msgNotAuthenticated = "Not authenticated. Please login first."
	msgNotInitialized   = "KiteConnect instance not initialized."
	msgNotConfigured    = "API Key not configured."
	msgMissingToken     = "No request_token found in callback."
	msgEmptyBody        = "Request body cannot be empty."

	maxBodyBytes = 1 << 20
)

var errEmptyBody = fmt.Errorf("%w: empty body", types.ErrMissingParameters)

func writeEnvelope(w http.ResponseWriter, status int, env types.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Warn(context.Background(), "Failed to write response", "error", err.Error())
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, types.Success(data, ""))
}

func writeMessage(w http.ResponseWriter, message string) {
	writeEnvelope(w, http.StatusOK, types.Success(nil, message))
}

// writeError maps an error onto its HTTP status and envelope message. Broker
// messages are passed through unmodified.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorWithErr(r.Context(), "Request error", err, "path", r.URL.Path, "status", status)
	}
	writeEnvelope(w, status, types.Failure(msg))
}

func classify(err error) (int, string) {
	var be *types.BrokerError
	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return http.StatusUnauthorized, msgNotAuthenticated
	case errors.Is(err, types.ErrNotConfigured):
		return http.StatusInternalServerError, msgNotConfigured
	case errors.Is(err, types.ErrNotInitialized):
		return http.StatusInternalServerError, msgNotInitialized
	case errors.Is(err, types.ErrMissingToken):
		return http.StatusBadRequest, msgMissingToken
	case errors.Is(err, errEmptyBody):
		return http.StatusBadRequest, msgEmptyBody
	case errors.Is(err, types.ErrAuthExchangeFailed):
		return http.StatusBadRequest, "Authentication failed: " + rootMessage(err)
	case errors.Is(err, types.ErrLoginNotSuccessful),
		errors.Is(err, types.ErrMissingParameters),
		errors.Is(err, types.ErrInvalidBody),
		errors.Is(err, types.ErrInvalidDate):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &be):
		return http.StatusInternalServerError, be.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// rootMessage prefers the broker's own message over the wrapping chain.
func rootMessage(err error) string {
	var be *types.BrokerError
	if errors.As(err, &be) {
		return be.Error()
	}
	return err.Error()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readJSON decodes a non-empty JSON object body into v. Unknown fields are
// rejected.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", types.ErrInvalidBody, err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidBody, err)
	}
	return nil
}

// decode reads the body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := readJSON(r, v); err != nil {
		return err
	}
	return s.check(v)
}

func (s *Server) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", types.ErrMissingParameters, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "required_if":
			parts = append(parts, fmt.Sprintf("%s is required when %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "nefield":
			parts = append(parts, fmt.Sprintf("%s must differ from %s", field, fe.Param()))
		case "gt", "gte", "min", "max":
			parts = append(parts, fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
