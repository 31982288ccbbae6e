package logsvc

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odinschool/odin/core"
)

type warnRecorder struct {
	core.Logger
	warnings []string
}

func (r *warnRecorder) Warn(msg string, _ ...interface{}) {
	r.warnings = append(r.warnings, msg)
}

func TestSecurityLogger_AccessDenied(t *testing.T) {
	var buf bytes.Buffer
	appLogger := &warnRecorder{}
	logger := NewSecurityLogger(&buf, appLogger)

	logger.AccessDenied(core.AccessAttempt{
		UserID:     "42",
		Email:      "student@odin.test",
		Role:       "student",
		RemoteAddr: "10.0.0.7",
		Method:     "GET",
		Path:       "/assignments/detail",
	})
	logger.AccessDenied(core.AccessAttempt{RemoteAddr: "10.0.0.8", Method: "GET", Path: "/assignments"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "SECURITY", entry["tag"])
	assert.Equal(t, "SECURITY - UNAUTHORISED ACCESS ATTEMPT", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "42", entry["user_id"])
	assert.Equal(t, "student@odin.test", entry["email"])
	assert.Equal(t, "10.0.0.7", entry["remote_addr"])
	assert.Equal(t, "/assignments/detail", entry["path"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "", entry["user_id"])
	assert.Equal(t, "10.0.0.8", entry["remote_addr"])

	require.Len(t, appLogger.warnings, 2)
	assert.Contains(t, appLogger.warnings[0], "/assignments/detail")
}

func TestSecurityLogger_Close(t *testing.T) {
	conf := &core.Config{}
	conf.Security.AuditLogFile = filepath.Join(t.TempDir(), "audit.log")

	f, err := OpenAuditFile(conf)
	require.NoError(t, err)
	logger := NewSecurityLogger(f, nil)
	logger.AccessDenied(core.AccessAttempt{RemoteAddr: "10.0.0.7", Method: "GET", Path: "/users"})

	require.NoError(t, logger.Close())
	assert.ErrorIs(t, f.Close(), os.ErrClosed, "audit file must be closed by the logger")

	data, err := os.ReadFile(conf.Security.AuditLogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path":"/users"`)

	// nothing to close on a plain writer
	assert.NoError(t, NewSecurityLogger(&bytes.Buffer{}, nil).Close())
}
