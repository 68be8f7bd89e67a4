package log

import (
	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldCategory      = "category"
	FieldAccount       = "account"
	FieldMonthKey      = "month_key"
	FieldMonthKeys     = "month_keys"
	FieldSource        = "source"
	FieldProvider      = "provider"
	FieldCount         = "count"
	FieldImported      = "imported"
	FieldSkipped       = "skipped"
	FieldRejected      = "rejected"
	FieldExpenses      = "total_expenses"
	FieldIncome        = "total_income"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
	ComponentImporter  = "importer"
	ComponentProviders = "providers"
	ComponentExport    = "export"
	ComponentService   = "transactions"
)

// Operations defines standard operation names
const (
	OpList     = "list"
	OpGet      = "get"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpClear    = "clear"
	OpImport   = "import"
	OpSync     = "sync"
	OpExport   = "export"
	OpCompare  = "compare"
	OpRollup   = "rollup"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
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

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds the identifying fields of one record. The amount is
// logged rounded to two places.
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldTransactionID] = t.ID
	f[FieldAmount] = core.FormatAmount(t.Amount)
	f[FieldCategory] = t.CategoryOrDefault()
	f[FieldAccount] = t.Account
	f[FieldMonthKey] = t.Month()
	return f
}

// WithImport adds the outcome counters of an import or sync run.
func (f LogFields) WithImport(source string, imported, skipped, rejected int) LogFields {
	f[FieldSource] = source
	f[FieldImported] = imported
	f[FieldSkipped] = skipped
	f[FieldRejected] = rejected
	return f
}

func (f LogFields) WithMonths(keys []string) LogFields {
	f[FieldMonthKeys] = keys
	return f
}

// WithTotals adds rounded monthly totals.
func (f LogFields) WithTotals(income, expenses decimal.Decimal) LogFields {
	f[FieldIncome] = core.FormatAmount(income)
	f[FieldExpenses] = core.FormatAmount(expenses)
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

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
