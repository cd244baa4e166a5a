package models

// ExportResult is the backend's response to a completed export call.
type ExportResult struct {
	Status   string `json:"status"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	Records  int    `json:"records,omitempty"`
	Message  string `json:"message,omitempty"`
	Location string `json:"location,omitempty"`
}

// ExportFile is one archived export listed by the backend.
type ExportFile struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ExportListing is the backend's /export/list response.
type ExportListing struct {
	Status string       `json:"status"`
	Files  []ExportFile `json:"files"`
}

// PresignedURL is the backend's response for a single export download.
type PresignedURL struct {
	Status    string `json:"status"`
	Key       string `json:"key,omitempty"`
	URL       string `json:"url,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}
