// Package logger builds the zerolog logger shared by the CLI and the server.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0664

// LogBuild 日志构建器
type LogBuild struct {
	writer  io.Writer
	path    string
	level   string
	console bool
}

// LogData 构建结果；LogFile 非空时由调用方 Close
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

// FromPath 追加写入日志文件，优先于 FromWriter
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromWriter(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level 日志级别名（debug/info/warn/error），空或无法识别时为 info
func (build *LogBuild) Level(level string) *LogBuild {
	build.level = level
	return build
}

// Console 人类可读的终端输出
func (build *LogBuild) Console(on bool) *LogBuild {
	build.console = on
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	var w io.Writer = os.Stderr
	if build.writer != nil {
		w = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		w = zerolog.SyncWriter(logData.LogFile)
	} else if build.console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	level, perr := zerolog.ParseLevel(build.level)
	if perr != nil || build.level == "" {
		level = zerolog.InfoLevel
	}
	logData.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logData, nil
}

// Close 关闭日志文件
func (d *LogData) Close() error {
	if d.LogFile == nil {
		return nil
	}
	return d.LogFile.Close()
}
