package log

import (
	"io"
	"os"
	"time"

	"github.com/cuemby/corral/pkg/types"
	"github.com/rs/zerolog"
)

// root is the process logger. Until Init runs it writes console lines
// to stderr at info level, which is also what tests get.
var root = console(os.Stderr).Level(zerolog.InfoLevel)

// Options configures Init.
type Options struct {
	// Level is a zerolog level name (debug, info, warn, error).
	// Empty means info.
	Level string
	// JSON emits one JSON object per line instead of console output.
	JSON bool
	// Writer defaults to stdout.
	Writer io.Writer
}

// Init replaces the process logger. An unknown level name is an
// error and leaves the current logger in place.
func Init(o Options) error {
	lvl := zerolog.InfoLevel
	if o.Level != "" {
		parsed, err := zerolog.ParseLevel(o.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	w := o.Writer
	if w == nil {
		w = os.Stdout
	}
	if o.JSON {
		root = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	} else {
		root = console(w).Level(lvl)
	}
	return nil
}

func console(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// Component returns a child logger for a long-running subsystem
// (statemgr, update coordinator, the daemon itself).
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

// Task returns a child logger bound to one task id.
func Task(taskId string) zerolog.Logger {
	return root.With().Str("task_id", taskId).Logger()
}

// Job returns a child logger bound to a job key. The environment field
// is omitted when the key has none.
func Job(key types.JobKey) zerolog.Logger {
	ctx := root.With().Str("role", key.Role).Str("job", key.Name)
	if key.Environment != "" {
		ctx = ctx.Str("environment", key.Environment)
	}
	return ctx.Logger()
}

// Update returns a child logger bound to a rolling update: the job key
// fields plus the update token.
func Update(key types.JobKey, token string) zerolog.Logger {
	return Job(key).With().Str("update_token", token).Logger()
}
