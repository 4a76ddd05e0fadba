package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/portal/core"
)

// RollbarLogger reports to rollbar (when enabled) and prints every entry on a std logger.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	l := &RollbarLogger{std: std, debug: conf.Debug}
	l.Enable(!conf.Debug && !conf.TestMode && conf.RollbarToken != "")
	return l
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for the queued rollbar items to be sent.
func (l *RollbarLogger) Close() {
	rollbar.Close()
}

// prepare extracts the core.Person (at most one) from args & returns the rollbar args.
// expected args: error, map[string]interface{}, core.Person
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *core.Person) {
	var person *core.Person
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if p, ok := arg.(core.Person); ok {
			if person == nil {
				person = &p
			}
			continue
		}
		newArgs = append(newArgs, arg)
	}
	if person != nil {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	return newArgs, person
}

// print writes a single line: LEVEL msg key=value... err="..." person=username
func (l *RollbarLogger) print(level, msg string, args []interface{}, person *core.Person) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, arg := range args[1:] {
		switch v := arg.(type) {
		case error:
			fmt.Fprintf(&b, " err=%q", v.Error())
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, v[k])
			}
		default:
			fmt.Fprintf(&b, " %+v", v)
		}
	}
	if person != nil {
		fmt.Fprintf(&b, " person=%s", person.Username)
	}
	l.std.Println(b.String())
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	newArgs, p := l.prepare(msg, args)
	rollbar.Debug(newArgs...)
	l.print("DEBUG", msg, newArgs, p)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	newArgs, p := l.prepare(msg, args)
	rollbar.Info(newArgs...)
	l.print("INFO", msg, newArgs, p)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	newArgs, p := l.prepare(msg, args)
	rollbar.Warning(newArgs...)
	l.print("WARN", msg, newArgs, p)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	newArgs, p := l.prepare(msg, args)
	rollbar.Error(newArgs...)
	l.print("ERROR", msg, newArgs, p)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	newArgs, p := l.prepare(msg, args)
	rollbar.Critical(newArgs...)
	l.print("FATAL", msg, newArgs, p)
	rollbar.Close()
	l.std.Fatal(msg)
}
