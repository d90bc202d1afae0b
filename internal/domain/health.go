package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// ReadinessStatus is returned by GET /readyz.
type ReadinessStatus struct {
	Status string `json:"status"` // ready, not ready
	Error  string `json:"error,omitempty"`
}

// UsageSnapshot is returned by GET /api/metrics/usage.
type UsageSnapshot struct {
	TotalTurns       int64   `json:"totalTurns"`
	ErrorRate        float64 `json:"errorRate"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	AvgTokensPerTurn float64 `json:"avgTokensPerTurn"`
	Period           string  `json:"period"`
}
