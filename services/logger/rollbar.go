package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

var stdLevels = map[string]string{
	rollbar.DEBUG: "DEBUG",
	rollbar.INFO:  "INFO",
	rollbar.WARN:  "WARN",
	rollbar.ERR:   "ERROR",
	rollbar.CRIT:  "FATAL",
}

// RollbarLogger reports to Rollbar and echoes everything on a std logger.
// The first user.User among the args of a call is reported as the Rollbar person,
// its role and school ID are added to the extras.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// splitArgs expects: error, map[string]interface{}, user.User, in any order.
func splitArgs(args []interface{}) (*user.User, []interface{}) {
	var (
		usr    *user.User
		extras map[string]interface{}
		rest   = make([]interface{}, 0, len(args))
	)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if usr == nil {
				usr = &a
			}
		case map[string]interface{}:
			if extras == nil {
				extras = make(map[string]interface{}, len(a)+2)
			}
			for k, v := range a {
				extras[k] = v
			}
		default:
			rest = append(rest, arg)
		}
	}

	if usr != nil {
		if extras == nil {
			extras = make(map[string]interface{}, 2)
		}
		extras["role"] = usr.Role.String()
		extras["school_id"] = usr.SchoolID
	}
	if extras != nil {
		rest = append(rest, extras)
	}
	return usr, rest
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	usr, rest := splitArgs(args)

	if usr != nil {
		rollbar.SetPerson(usr.ID, usr.FullName(), usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, append([]interface{}{msg}, rest...)...)

	l.std.Printf("[%s] %s", stdLevels[level], msg)
	if usr != nil {
		l.std.Printf("user: %s <%s>", usr.ID, usr.Email)
	}
	for _, arg := range rest {
		l.std.Printf("%+v", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
