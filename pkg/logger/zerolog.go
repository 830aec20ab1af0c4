package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer  io.Writer
	path    string
	console bool
	level   zerolog.Level
	fields  []any
}

type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Console renders human readable lines instead of JSON.
func (build *LogBuild) Console() *LogBuild {
	build.console = true
	return build
}

// Level sets the minimum level, e.g. "debug" or "warn".
// Unknown names keep the current level.
func (build *LogBuild) Level(name string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(name); err == nil && lvl != zerolog.NoLevel {
		build.level = lvl
	}
	return build
}

// With attaches key/value pairs to every record of the built logger.
func (build *LogBuild) With(args ...any) *LogBuild {
	build.fields = append(build.fields, args...)
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	var writer io.Writer = os.Stdout
	if build.writer != nil {
		writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	if build.console {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: build.path != ""}
	}
	ctx := zerolog.New(writer).Level(build.level).With().Timestamp()
	if len(build.fields) > 0 {
		ctx = ctx.Fields(build.fields)
	}
	logData.Logger = ctx.Logger()
	return logData, nil
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

func (logData *LogData) Error(msg string, args ...any) {
	logData.emit(logData.Logger.Error(), msg, args)
}

func (logData *LogData) Warn(msg string, args ...any) {
	logData.emit(logData.Logger.Warn(), msg, args)
}

func (logData *LogData) Info(msg string, args ...any) {
	logData.emit(logData.Logger.Info(), msg, args)
}

func (logData *LogData) Debug(msg string, args ...any) {
	logData.emit(logData.Logger.Debug(), msg, args)
}

func (logData *LogData) emit(event *zerolog.Event, msg string, args []any) {
	if len(args) > 0 {
		event = event.Fields(normalize(args))
	}
	event.Msg(msg)
}

// normalize turns error values into strings so zerolog renders their message
// instead of an empty object, and pads a dangling key.
func normalize(args []any) []any {
	out := make([]any, 0, len(args)+1)
	for _, a := range args {
		if err, ok := a.(error); ok {
			out = append(out, err.Error())
			continue
		}
		out = append(out, a)
	}
	if len(out)%2 != 0 {
		out = append(out, "")
	}
	return out
}
