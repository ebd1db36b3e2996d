package utils

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOutput describes where log lines go
type LogOutput struct {
	Output     string // stdout, file, both
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogWriter builds the process log writer, rotating files through lumberjack
func NewLogWriter(out LogOutput) io.Writer {
	if out.Output == "stdout" || out.FilePath == "" {
		return os.Stdout
	}
	rotating := &lumberjack.Logger{
		Filename:   out.FilePath,
		MaxSize:    out.MaxSize,
		MaxBackups: out.MaxBackups,
		MaxAge:     out.MaxAge,
		Compress:   out.Compress,
	}
	if out.Output == "file" {
		return rotating
	}
	return io.MultiWriter(os.Stdout, rotating)
}

// NewLogger returns a component logger, e.g. NewLogger(w, "worker") prefixes lines with "worker: "
func NewLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, component+": ", log.LstdFlags|log.Lmicroseconds)
}
