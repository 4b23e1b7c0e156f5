package model

// AppError is the only error payload returned to clients of the command
// surface. Every package-level error type wraps one.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`
	URL     string `json:"url,omitempty"`

	Snippet string `json:"snippet,omitempty"` // never the full link: links carry credentials
	Hint    string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}
