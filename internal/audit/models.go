package audit

import "time"

// Entry is one immutable record of a mutating action. Appended once, never
// updated or deleted by this subsystem.
type Entry struct {
	ID        int64          `json:"id"`
	Actor     *string        `json:"actor"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
	SourceIP  *string        `json:"source_ip"`
	UserAgent *string        `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows the activity report.
type Filter struct {
	// Actor matches exactly when non-empty.
	Actor string
	// Action matches as a substring when non-empty.
	Action string
	// Search free-text matches against the serialized payload.
	Search string
	// From/To bound CreatedAt inclusively when non-zero.
	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

// DefaultLimit caps an unbounded report page.
const DefaultLimit = 50
