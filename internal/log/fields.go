package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldTab        = "tab"
	FieldFamily     = "family"
	FieldBucketID   = "bucket_id"
	FieldGeneration = "generation"
	FieldStart      = "start_date"
	FieldEnd        = "end_date"
	FieldRows       = "rows"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentAPI       = "api"
	ComponentDashboard = "dashboard"
	ComponentRender    = "render"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentViewer    = "viewer"
	ComponentTUI       = "tui"
)

// Operations defines standard operation names
const (
	OpRefresh   = "refresh"
	OpSwitchTab = "switch_tab"
	OpDrill     = "drill"
	OpBack      = "back"
	OpRender    = "render"
	OpLogin     = "login"
	OpImport    = "import"
	OpReset     = "reset"
	OpExport    = "export"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeAuth          = "auth_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeStatus        = "status_error"
	ErrorTypeDecode        = "decode_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeStorage       = "storage_error"
	ErrorTypeInternal      = "internal_error"
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
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTab adds the analytics tab and its period
func (f LogFields) WithTab(tab, start, end string) LogFields {
	f[FieldTab] = tab
	if start != "" {
		f[FieldStart] = start
	}
	if end != "" {
		f[FieldEnd] = end
	}
	return f
}

// WithDrill adds drill-down fields
func (f LogFields) WithDrill(family, bucketID string, generation uint64) LogFields {
	f[FieldFamily] = family
	f[FieldBucketID] = bucketID
	f[FieldGeneration] = generation
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
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
