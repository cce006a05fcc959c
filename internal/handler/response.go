package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/server/authctx"
)

type apiError struct {
	Code    int            `json:"code"`
	Status  string         `json:"status"`
	Kind    string         `json:"kind,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if status >= 400 {
		writeRawJSON(w, status, apiResponse{
			Status: "error",
			Data:   payload,
			Error: &apiError{
				Code:   status,
				Status: http.StatusText(status),
			},
		})
		return
	}
	writeRawJSON(w, status, apiResponse{
		Status: "ok",
		Data:   payload,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
		},
	})
}

// statusFor maps the error taxonomy to HTTP.
func statusFor(e *domain.Error) int {
	switch e.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindState:
		if strings.HasSuffix(e.Code, "_NOT_FOUND") {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeDomainError renders a service error. External failures are logged in full and
// answered with the code only.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		de = domain.External("request", err)
	}
	status := statusFor(de)
	message := de.Message
	if de.Kind == domain.KindExternal {
		if logger != nil {
			logger.Error("request failed", "code", de.Code, "err", err)
		}
		message = "internal error"
	}
	details := de.Details
	if de.Kind == domain.KindExternal {
		details = nil
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Data:    errorBody(de.Code, message, details),
		Error: &apiError{
			Code:    status,
			Status:  http.StatusText(status),
			Kind:    string(de.Kind),
			Reason:  de.Code,
			Details: details,
		},
	})
}

// errorBody is the flat {error, message, ...details} object clients branch on.
func errorBody(code, message string, details map[string]any) map[string]any {
	body := make(map[string]any, len(details)+2)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = code
	body["message"] = message
	return body
}

// decodeBody decodes JSON into dst and runs struct validation.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Validation("invalid payload")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.Validation(fe.Field() + " failed " + fe.Tag() + " validation")
		}
		return domain.Validation(err.Error())
	}
	return nil
}

func currentActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.Actor{}, false
	}
	return user.Actor(), true
}
