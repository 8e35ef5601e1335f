package log

import "time"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldSessionID     = "session_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldMode          = "mode"
	FieldDays          = "days"
	FieldMonth         = "month"
	FieldYear          = "year"
	FieldTypeFilter    = "type_filter"
	FieldCategoryCount = "category_count"
	FieldHasSearch     = "has_search"
	FieldFallback      = "fallback"
	FieldReason        = "reason"
	FieldVersion       = "version"
	FieldEventID       = "event_id"
	FieldCacheKey      = "cache_key"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentFilters   = "filters"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSources   = "sources"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRead     = "read"
	OpUpdate   = "update"
	OpList     = "list"
	OpApply    = "apply"
	OpClear    = "clear"
	OpResolve  = "resolve"
	OpSummary  = "summary"
	OpPublish  = "publish"
	OpRecord   = "record"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
	OpReload   = "reload"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

// WithSession adds the dashboard session id.
func (f LogFields) WithSession(sessionID string) LogFields {
	f[FieldSessionID] = sessionID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithFilters adds the shape of a filter selection. The search text is never
// logged, only whether one was set.
func (f LogFields) WithFilters(mode string, days int, month, year, typeFilter string, categoryCount int, hasSearch bool) LogFields {
	f[FieldMode] = mode
	f[FieldDays] = days
	f[FieldMonth] = month
	f[FieldYear] = year
	f[FieldTypeFilter] = typeFilter
	f[FieldCategoryCount] = categoryCount
	f[FieldHasSearch] = hasSearch
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, duration time.Duration, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = duration.Milliseconds()
	f[FieldDurationHuman] = duration.String()
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
