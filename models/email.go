package models

// SendTimeRequest is the body of POST /log-email.
type SendTimeRequest struct {
	Email    string `json:"email" binding:"required"`
	SendTime string `json:"send_time" binding:"required"`
}

// LogEntry is a ViewEvent as shown to readers, times already converted
// to the display offset.
type LogEntry struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
	SendTime  string `json:"send_time"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
}
