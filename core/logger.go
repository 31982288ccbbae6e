package core

// Logger is the application logger.
// args are optional and may hold: error, map[string]interface{} (extras) and the principal (user.User).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// AccessAttempt describes a request refused by an access guard.
// UserID and Email are empty when the request was not authenticated.
type AccessAttempt struct {
	UserID     string
	Email      string
	Role       string
	RemoteAddr string
	Method     string
	Path       string
}

// AuditLogger records security events on a stream kept apart from the application logs.
type AuditLogger interface {
	AccessDenied(attempt AccessAttempt)
}
