package api

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SubmitRequest is the body for POST /api/v1/downloads.
type SubmitRequest struct {
	MovieTitle string            `json:"movie_title"`
	RequestID  string            `json:"request_id"`
	Requester  string            `json:"requester"`
	Metadata   map[string]string `json:"metadata"`
}

// SubmitResponse is returned with 202 Accepted.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
