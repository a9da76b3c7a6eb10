package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on context loggers through a call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldWorkerID identifies the worker loop that owns a task
	FieldWorkerID = "worker_id"

	// FieldFileKey is the remote object key of a task
	FieldFileKey = "file_key"

	// FieldTaskID is the task row ID
	FieldTaskID = "task_id"

	// FieldStage is the transfer stage (fetch, push)
	FieldStage = "stage"

	// FieldRunID identifies one discoverer run
	FieldRunID = "run_id"
)

// Metric fields, attached per entry for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation or task status
	FieldStatus = "status"

	// FieldRetryCount is the task retry counter after a transition
	FieldRetryCount = "retry_count"
)
