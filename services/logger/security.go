package logsvc

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
)

const (
	securityTag       = "SECURITY"
	accessDeniedMsg   = "SECURITY - UNAUTHORISED ACCESS ATTEMPT"
	auditFileMode     = 0o640
	auditFileOpenFlag = os.O_APPEND | os.O_CREATE | os.O_WRONLY
)

// SecurityLogger writes security events as JSON lines on their own stream,
// and forwards them as warnings to the application logger.
type SecurityLogger struct {
	out    io.Writer
	audit  *slog.Logger
	logger core.Logger
}

var _ core.AuditLogger = (*SecurityLogger)(nil)

func NewSecurityLogger(w io.Writer, logger core.Logger) *SecurityLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &SecurityLogger{
		out:   w,
		audit:  slog.New(handler).With("tag", securityTag),
		logger: logger,
	}
}

// OpenAuditFile opens the audit log file for appending, creating it if needed.
// The SecurityLogger it is handed to closes it.
func OpenAuditFile(conf *core.Config) (*os.File, error) {
	f, err := os.OpenFile(conf.Security.AuditLogFile, auditFileOpenFlag, auditFileMode)
	if err != nil {
		return nil, errors.Wrap(err, "opening audit log file")
	}
	return f, nil
}

func (l *SecurityLogger) AccessDenied(attempt core.AccessAttempt) {
	l.audit.Warn(accessDeniedMsg,
		slog.String("user_id", attempt.UserID),
		slog.String("email", attempt.Email),
		slog.String("role", attempt.Role),
		slog.String("remote_addr", attempt.RemoteAddr),
		slog.String("method", attempt.Method),
		slog.String("path", attempt.Path),
	)
	if l.logger != nil {
		l.logger.Warn(fmt.Sprintf("%s: %s %s from %s", accessDeniedMsg, attempt.Method, attempt.Path, attempt.RemoteAddr),
			map[string]interface{}{"user_id": attempt.UserID, "email": attempt.Email, "role": attempt.Role})
	}
}

// Close closes the underlying stream if it is closable. Events logged afterwards are dropped.
func (l *SecurityLogger) Close() error {
	if c, ok := l.out.(io.Closer); ok {
		return errors.Wrap(c.Close(), "closing audit log")
	}
	return nil
}
