package engine

// Progress event types forwarded to the caller's hook. The engine never
// renders progress itself; a CLI or UI layer subscribes and draws.
const (
	EventBatchStarted   = "batch_started"
	EventItemStarted    = "item_started"
	EventItemRetrying   = "item_retrying"
	EventItemCompleted  = "item_completed"
	EventItemFailed     = "item_failed"
	EventStepStarted    = "step_started"
	EventBatchCompleted = "batch_completed"
)

// ProgressFunc receives progress events. It is called from item goroutines
// and must be safe for concurrent use.
type ProgressFunc func(event string, data map[string]any)
