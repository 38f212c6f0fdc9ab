package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var minLevel atomic.Int64

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelDebug,
}))

func init() {
	minLevel.Store(int64(LevelInfo))
}

// SetLevel sets the process-wide minimum level that is actually logged.
func SetLevel(l Level) {
	minLevel.Store(int64(l))
}

func enabled(l Level) bool {
	return int64(l) >= minLevel.Load()
}

// Stringer is implemented by loggable objects passed as the first
// argument to Trace/Debug/Info/Warn/Error/Fatal, e.g. a Name or a
// component identifying which engine emitted the line. nil is valid.
type Stringer interface {
	String() string
}

func log(ctx context.Context, l Level, obj Stringer, msg string, kv ...any) {
	if !enabled(l) {
		return
	}
	args := make([]any, 0, len(kv)+2)
	if obj != nil {
		args = append(args, "obj", obj.String())
	}
	args = append(args, kv...)
	base.Log(ctx, slog.Level(l), msg, args...)
}

func Trace(obj Stringer, msg string, kv ...any) { log(context.Background(), LevelTrace, obj, msg, kv...) }
func Debug(obj Stringer, msg string, kv ...any) { log(context.Background(), LevelDebug, obj, msg, kv...) }
func Info(obj Stringer, msg string, kv ...any)  { log(context.Background(), LevelInfo, obj, msg, kv...) }
func Warn(obj Stringer, msg string, kv ...any)  { log(context.Background(), LevelWarn, obj, msg, kv...) }
func Error(obj Stringer, msg string, kv ...any) { log(context.Background(), LevelError, obj, msg, kv...) }

// Fatal logs at LevelFatal then exits the process. Engine shutdown
// paths should prefer returning an error; this is for init-time
// failures with no caller left to handle them.
func Fatal(obj Stringer, msg string, kv ...any) {
	log(context.Background(), LevelFatal, obj, msg, kv...)
	os.Exit(1)
}
