package models

// RemoteMediaRequest selects media by reference instead of upload
type RemoteMediaRequest struct {
	Ref string `json:"ref" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmitResponse acknowledges an accepted submission. Clients poll the
// session until the generation settles.
type SubmitResponse struct {
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
}

// ServiceHealth is returned by the session server's own health check
type ServiceHealth struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Time     string `json:"time"`
	Upstream string `json:"upstream"`
}
