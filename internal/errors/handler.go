package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
)

// Problem type URIs
const (
	TypeValidation        = "/errors/validation"
	TypeNotFound          = "/errors/not-found"
	TypeMethodNotAllowed  = "/errors/method-not-allowed"
	TypeInternal          = "/errors/internal"
	TypeTimeout           = "/errors/timeout"
	TypeRateLimit         = "/errors/rate-limit"
	TypeReportNotFound    = "/errors/report/not-found"
	TypeSourceUnavailable = "/errors/source/unavailable"
	TypeConfiguration     = "/errors/report/configuration"
	TypeDataCorrupted     = "/errors/data/corrupted"
	TypeStorage           = "/errors/storage"
)

const internalDetail = "An unexpected error occurred while processing your request"

// problemShape is the status, type and title an AppError type renders as.
type problemShape struct {
	status int
	uri    string
	title  string
}

var appErrorShapes = map[ErrorType]problemShape{
	ErrTypeRetrieval:  {http.StatusBadGateway, TypeSourceUnavailable, "Source Unavailable"},
	ErrTypeNetwork:    {http.StatusBadGateway, TypeSourceUnavailable, "Source Unavailable"},
	ErrTypeConfig:     {http.StatusUnprocessableEntity, TypeConfiguration, "Report Configuration Error"},
	ErrTypeValidation: {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeNotFound:   {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	ErrTypeParsing:    {http.StatusUnprocessableEntity, TypeDataCorrupted, "Data Could Not Be Parsed"},
	ErrTypeStorage:    {http.StatusInternalServerError, TypeStorage, "Export Failed"},
}

var apiErrorTypes = map[string]string{
	"VALIDATION_FAILED": TypeValidation,
	"INVALID_REQUEST":   TypeValidation,
}

// ErrorHandler renders errors as RFC 7807 problem documents
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an error handler. includeStack adds goroutine
// stacks to 5xx problems and is meant for development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and writes it as a problem document
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r).WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
		if h.includeStack {
			problem.WithExtension("stack", stackTrace())
		}
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.String("error_type", string(TypeOf(err))),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.Write(w)
}

// ErrorToProblem maps err onto a problem document. Errors outside the
// AppError and APIError families become an opaque 500.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The report did not finish before the request deadline", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProblem(apiErr, r)
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErrorToProblem(appErr, r)
	}
	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		internalDetail, r.URL.Path)
}

func appErrorToProblem(appErr *AppError, r *http.Request) *ProblemDetails {
	shape, ok := appErrorShapes[appErr.Type]
	if !ok {
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			internalDetail, r.URL.Path).WithExtension("error_type", string(appErr.Type))
	}
	if appErr.Type == ErrTypeNotFound {
		if _, isReport := appErr.Context["report"]; isReport {
			shape.uri, shape.title = TypeReportNotFound, "Report Not Found"
		}
	}

	detail := appErr.Message
	if appErr.Retryable() {
		// the cause names the failing fetch
		detail = appErr.Error()
	}
	problem := NewProblemDetails(shape.status, shape.uri, shape.title, detail, r.URL.Path)
	for k, v := range appErr.Context {
		problem.WithExtension(k, v)
	}
	if appErr.Retryable() {
		problem.WithExtension("retryable", true)
	}
	return problem.WithExtension("error_type", string(appErr.Type))
}

func apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	uri, ok := apiErrorTypes[apiErr.ErrorCode]
	if !ok {
		uri = TypeInternal
	}
	problem := NewProblemDetails(apiErr.StatusCode, uri, http.StatusText(apiErr.StatusCode),
		apiErr.Message, r.URL.Path).WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic writes a 500 problem for a recovered panic
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())
	stack := stackTrace()
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path),
		slog.String("stack", stack),
	)

	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		internalDetail, r.URL.Path).WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprint(recovered))
		problem.WithExtension("stack", stack)
	}
	problem.Write(w)
}

// NotFound is the router's 404 handler
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "No route matches "+r.URL.Path, r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())).
		Write(w)
}

// MethodNotAllowed is the router's 405 handler
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	NewProblemDetails(http.StatusMethodNotAllowed, TypeMethodNotAllowed, "Method Not Allowed",
		fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path), r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())).
		Write(w)
}

func stackTrace() string {
	buf := make([]byte, 8<<10)
	return string(buf[:runtime.Stack(buf, false)])
}

// Middleware recovers panics from the handlers below it and logs every
// error status they write.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWatcher{ResponseWriter: w, handler: h, request: r}
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if !sw.wroteHeader {
					h.HandlePanic(sw, r, rec)
				}
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

type statusWatcher struct {
	http.ResponseWriter
	handler     *ErrorHandler
	request     *http.Request
	wroteHeader bool
}

func (w *statusWatcher) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if status >= http.StatusBadRequest {
		w.handler.logger.DebugContext(w.request.Context(), "error response",
			slog.Int("status", status),
			slog.String("method", w.request.Method),
			slog.String("path", w.request.URL.Path),
		)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWatcher) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets streamed exports pass through the watcher
func (w *statusWatcher) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
