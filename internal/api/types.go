package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueRow describes a match queue row in a transport-friendly format.
type QueueRow struct {
	ID                    string   `json:"id"`
	RawName               string   `json:"rawName"`
	CleanedName           string   `json:"cleanedName"`
	Source                string   `json:"source"`
	Status                string   `json:"status"`
	NeedsIngredientReview bool     `json:"needsIngredientReview"`
	NeedsUnitReview       bool     `json:"needsUnitReview"`
	PendingUnit           bool     `json:"pendingUnit"`
	BestFuzzyMatch        string   `json:"bestFuzzyMatch,omitempty"`
	FuzzyScore            *float64 `json:"fuzzyScore,omitempty"`
	ResolvedIngredientID  string   `json:"resolvedIngredientId,omitempty"`
	ResolvedUnit          string   `json:"resolvedUnit,omitempty"`
	ResolvedQuantity      *float64 `json:"resolvedQuantity,omitempty"`
	UnitConfidence        *float64 `json:"unitConfidence,omitempty"`
	QuantityConfidence    *float64 `json:"quantityConfidence,omitempty"`
	ResolvedBy            string   `json:"resolvedBy,omitempty"`
	ProcessingStartedAt   string   `json:"processingStartedAt,omitempty"`
	LeaseExpiresAt        string   `json:"leaseExpiresAt,omitempty"`
	AttemptCount          int      `json:"attemptCount"`
	LastError             string   `json:"lastError,omitempty"`
	CreatedAt             string   `json:"createdAt,omitempty"`
	UpdatedAt             string   `json:"updatedAt,omitempty"`
	ResolvedAt            string   `json:"resolvedAt,omitempty"`
}

// QueueHealth summarizes queue counters.
type QueueHealth struct {
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	PendingUnit  int    `json:"pendingUnit"`
	Processing   int    `json:"processing"`
	Expired      int    `json:"expiredLeases"`
	Resolved     int    `json:"resolved"`
	Failed       int    `json:"failed"`
	MaxAttempts  int    `json:"maxAttempts"`
	OldestLeased string `json:"oldestLeased,omitempty"`
}

// DatabaseHealth mirrors queue.DatabaseHealth.
type DatabaseHealth struct {
	Driver           string   `json:"driver"`
	Location         string   `json:"location"`
	DatabaseExists   bool     `json:"databaseExists"`
	DatabaseReadable bool     `json:"databaseReadable"`
	SchemaVersion    string   `json:"schemaVersion,omitempty"`
	TableExists      bool     `json:"tableExists"`
	MissingColumns   []string `json:"missingColumns,omitempty"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	TotalRows        int      `json:"totalRows"`
	Error            string   `json:"error,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HealthResponse combines store diagnostics and preflight results.
type HealthResponse struct {
	Queue    QueueHealth    `json:"queue"`
	Database DatabaseHealth `json:"database"`
	Checks   []CheckResult  `json:"checks,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool        `json:"running"`
	PID             int         `json:"pid"`
	StartedAt       string      `json:"startedAt,omitempty"`
	LockFilePath    string      `json:"lockFilePath"`
	StoreDriver     string      `json:"storeDriver"`
	StoreLocation   string      `json:"storeLocation"`
	LastSweepAt     string      `json:"lastSweepAt,omitempty"`
	LastSweepError  string      `json:"lastSweepError,omitempty"`
	RequeuedTotal   int64       `json:"requeuedTotal"`
	ExhaustedTotal  int64       `json:"exhaustedTotal"`
	BackfilledTotal int64       `json:"backfilledTotal"`
	Queue           QueueHealth `json:"queue"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue rows for API responses.
type QueueListResponse struct {
	Rows []QueueRow `json:"rows"`
}

// QueueRowResponse wraps a single queue row.
type QueueRowResponse struct {
	Row QueueRow `json:"row"`
}

// RequeueResponse reports an expired-lease sweep.
type RequeueResponse struct {
	Requeued  int      `json:"requeued"`
	Exhausted int      `json:"exhausted"`
	IDs       []string `json:"ids"`
}
