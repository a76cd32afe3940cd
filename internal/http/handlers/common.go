package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/http/middleware"
)

var errInvalidPayload = errors.New("invalid payload")

// JobService is the orchestrator surface exposed over HTTP.
type JobService interface {
	CreateJob(ctx context.Context, company domain.CompanyInfo, taskRef string) string
	GetJob(id string) (domain.Job, bool)
	ListJobs() []domain.Job
}

type API struct {
	jobs        JobService
	validate    *validator.Validate
	idempotency *idempotencyStore
}

func NewAPI(jobs JobService) *API {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &API{
		jobs:        jobs,
		validate:    validate,
		idempotency: newIdempotencyStore(),
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// describeValidation turns validator errors into a message naming each
// rejected field by its JSON name.
func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		switch fieldErr.Tag() {
		case "required":
			parts = append(parts, fieldErr.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fieldErr.Field(), strings.ReplaceAll(fieldErr.Param(), " ", ", ")))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fieldErr.Field(), fieldErr.Param()))
		case "url":
			parts = append(parts, fieldErr.Field()+" must be a valid URL")
		default:
			parts = append(parts, fieldErr.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
