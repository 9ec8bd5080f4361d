package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldUserID        = "user_id"
	FieldRunID         = "run_id"
	FieldTransactionID = "transaction_id"
	FieldMerchantKey   = "merchant_key"
	FieldMonthKey      = "month_key"
	FieldCategoryType  = "category_type"
	FieldCategoryLabel = "category_label"
	FieldConfidence    = "confidence"
	FieldCount         = "count"
	FieldSkipped       = "skipped"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentNormalize = "normalize"
	ComponentClassify  = "classify"
	ComponentAnalytics = "analytics"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentExport    = "export"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpNormalize = "normalize"
	OpClassify  = "classify"
	OpRecompute = "recompute"
	OpPersist   = "persist"
	OpExport    = "export"
	OpConsume   = "consume"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)
