package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a transcription job in a transport-friendly format.
type Job struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	Status      string            `json:"status"`
	Stage       string            `json:"stage"`
	Progress    float64           `json:"progress"`
	Message     string            `json:"message"`
	Error       string            `json:"error"`
	ABCText     string            `json:"abc_text"`
	ConciseText string            `json:"concise_notes_text"`
	Downloads   map[string]string `json:"downloads"`
	PreviewURL  string            `json:"preview_url,omitempty"`
	Log         []string          `json:"log"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

// JobResponse wraps a single job payload.
type JobResponse struct {
	Job Job `json:"job"`
}

// HealthResponse reports service readiness.
type HealthResponse struct {
	Status        string `json:"status"`
	HomrAvailable bool   `json:"homr_available"`
	MaxUploadMB   int    `json:"max_upload_mb"`
	ActiveJobs    int    `json:"active_jobs"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Detail            string   `json:"detail"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}
