package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldNamespace  = "namespace"
	FieldRecordType = "record_type"
	FieldRecordID   = "record_id"
	FieldCursor     = "cursor"
	FieldPushed     = "pushed"
	FieldPulled     = "pulled"
	FieldMonth      = "month"
	FieldCount      = "count"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentStore      = "store"
	ComponentStorage    = "storage"
	ComponentSync       = "sync"
	ComponentAuthority  = "authority"
	ComponentRecurrence = "recurrence"
	ComponentCarryOver  = "carryover"
	ComponentLedger     = "ledger"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentHTTP       = "http"
)

// Operations defines standard operation names
const (
	OpSet      = "set"
	OpDelete   = "delete"
	OpHydrate  = "hydrate"
	OpSync     = "sync"
	OpPush     = "push"
	OpPull     = "pull"
	OpValidate = "validate"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithNamespace(ns string) LogFields {
	f[FieldNamespace] = ns
	return f
}

// WithRecord adds the record identity.
func (f LogFields) WithRecord(recordType, recordID string) LogFields {
	f[FieldRecordType] = recordType
	f[FieldRecordID] = recordID
	return f
}

// WithSync adds the outcome of one sync round-trip.
func (f LogFields) WithSync(pushed, pulled int, cursor string) LogFields {
	f[FieldPushed] = pushed
	f[FieldPulled] = pulled
	f[FieldCursor] = cursor
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
