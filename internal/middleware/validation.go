package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "ebidash/internal/errors"
	"ebidash/internal/exporter"
	"ebidash/pkg/contracts/domain"
)

// ReportQuery are the query parameters of a report request
type ReportQuery struct {
	Report string `json:"report" validate:"required,slug"`
	Start  int    `json:"start" validate:"omitempty,min=1900,max=2200"`
	End    int    `json:"end" validate:"omitempty,min=1900,max=2200,gtefield=Start"`
	Query  string `json:"q" validate:"max=200"`
	Format string `json:"format" validate:"oneof=json csv xlsx"`
}

// Range returns the requested window, nil when neither bound was given.
// A single bound is completed from the fallback window.
func (q ReportQuery) Range(fallback domain.YearRange) *domain.YearRange {
	if q.Start == 0 && q.End == 0 {
		return nil
	}
	r := fallback
	if q.Start != 0 {
		r.Start = q.Start
	}
	if q.End != 0 {
		r.End = q.End
	}
	return &r
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidationMiddleware validates request parameters using struct tags
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewValidationMiddleware creates a new validation middleware
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ValidationMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("slug", isSlug)

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ValidationMiddleware{
		validator:    v,
		logger:       logger.With(slog.String("component", "validation_middleware")),
		errorHandler: errorHandler,
	}
}

// ParseReportQuery reads and validates the report parameters of r.
// On failure the problem response has been written and ok is false.
func (m *ValidationMiddleware) ParseReportQuery(w http.ResponseWriter, r *http.Request, report string) (ReportQuery, bool) {
	values := r.URL.Query()
	q := ReportQuery{
		Report: report,
		Query:  strings.TrimSpace(values.Get("q")),
		Format: strings.ToLower(values.Get("format")),
	}
	if q.Format == "" {
		q.Format = string(exporter.FormatJSON)
	}

	var fieldErrs []apierrors.ValidationError
	for _, p := range []struct {
		name string
		dst  *int
	}{{"start", &q.Start}, {"end", &q.End}} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, apierrors.ValidationError{
				Field: p.name, Message: fmt.Sprintf("%s must be a year", p.name),
			})
			continue
		}
		*p.dst = n
	}
	if len(fieldErrs) > 0 {
		m.reject(w, r, apierrors.NewValidationErrors(fieldErrs))
		return q, false
	}

	if err := m.ValidateStruct(q); err != nil {
		m.reject(w, r, err)
		return q, false
	}
	return q, true
}

func (m *ValidationMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.DebugContext(r.Context(), "request rejected",
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
	)
	m.errorHandler.HandleError(w, r, err)
}

// ValidateStruct validates a struct and returns validation errors
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apierrors.InvalidRequestWithError(err)
	}

	var validationErrors []apierrors.ValidationError
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(validationErrors)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, strings.ToLower(param))
	case "slug":
		return fmt.Sprintf("%s must be a lowercase report name", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isSlug validates report names such as funding-by-discipline
func isSlug(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) <= 64 && slugPattern.MatchString(s)
}
