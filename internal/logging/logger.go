package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger struct {
	// The level at which this logger logs. Any log messages intended for a
	// higher (more verbose) log level are ignored. Accessed atomically, since
	// Configure may run while other goroutines log.
	level int32

	// Tag used to filter and classify log messages.
	Tag string

	out *output
}

// Destination shared by all derived loggers. The mutex prevents messages
// from different goroutines from interleaving.
type output struct {
	sync.Mutex
	w io.Writer
}

// Write to stderr by default.
var DefaultLogger = &Logger{
	level: int32(defaultLevel),
	out:   &output{w: os.Stderr},
}

var (
	derivedMu sync.Mutex
	derived   []*Logger
)

// Level returns the current level of this logger.
func (log *Logger) Level() Level {
	return Level(atomic.LoadInt32(&log.level))
}

// SetLevel overrides the level of this logger only.
func (log *Logger) SetLevel(level Level) {
	atomic.StoreInt32(&log.level, int32(level))
}

// Enabled reports whether a message at the given level would be written.
func (log *Logger) Enabled(level Level) bool {
	return level <= log.Level()
}

// Override the destination for this logger and all loggers derived from it.
func (log *Logger) SetDestination(w io.Writer) {
	log.out.Lock()
	log.out.w = w
	log.out.Unlock()
}

// Derive a new logger with the given tag. Look up the level based on the tag.
func (log *Logger) WithTag(tag string) *Logger {
	l := &Logger{
		level: int32(determineLevel(tag, log.Level())),
		Tag:   tag,
		out:   log.out,
	}
	derivedMu.Lock()
	derived = append(derived, l)
	derivedMu.Unlock()
	return l
}

// Re-resolve levels of derived loggers after Configure.
func refreshDerived() {
	derivedMu.Lock()
	defer derivedMu.Unlock()
	for _, l := range derived {
		l.SetLevel(determineLevel(l.Tag, defaultLevel))
	}
}

// Wrapper for []byte that implements io.Writer. Simpler and cheaper than
// bytes.Buffer.
type buffer []byte

func (b *buffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func (b *buffer) writeByte(c byte) {
	*b = append(*b, c)
}

// A global buffer pool, shared across all loggers. Initial capacity is 256 to
// accommodate *most* log lines.
var bufPool = sync.Pool{
	New: func() interface{} {
		return make(buffer, 0, 256)
	},
}

// Log a message at the given level. Include the file and line number from
// 'calldepth' steps up the call stack.
func (log *Logger) Log(level Level, calldepth int, format string, a ...interface{}) {
	if !log.Enabled(level) {
		return
	}

	buf := bufPool.Get().(buffer)
	defer func() { bufPool.Put(buf[:0]) }()

	buf = append(buf, timestampColor.Sprint(time.Now().Format(timestampFormat))...)

	// Get the caller of Error()/Warn()/Info()/etc.
	_, file, line, ok := runtime.Caller(calldepth + 1)
	if !ok {
		file = "?"
	}
	prefix := fmt.Sprintf(" %c/%s[%s:%d] ", level.letter(), log.Tag, filepath.Base(file), line)
	buf = append(buf, level.color().Sprint(prefix)...)

	fmt.Fprintf(&buf, format, a...)

	if n := len(format); n == 0 || format[n-1] != '\n' {
		buf.writeByte('\n')
	}

	log.out.Lock()
	_, err := log.out.w.Write(buf)
	log.out.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: write failed: %v\n", err)
	}
}

func (log *Logger) Error(format string, a ...interface{}) {
	log.Log(Error, 1, format, a...)
}

func (log *Logger) Warn(format string, a ...interface{}) {
	log.Log(Warn, 1, format, a...)
}

func (log *Logger) Info(format string, a ...interface{}) {
	log.Log(Info, 1, format, a...)
}

func (log *Logger) Debug(format string, a ...interface{}) {
	log.Log(Debug, 1, format, a...)
}

func (log *Logger) Trace(n int, format string, a ...interface{}) {
	log.Log(Level(n), 1, format, a...)
}

// Fatal logs at error level and exits.
func (log *Logger) Fatal(format string, a ...interface{}) {
	log.Log(Error, 1, format, a...)
	os.Exit(1)
}
