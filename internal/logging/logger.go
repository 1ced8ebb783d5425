package logging

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger stays a no-op until Initialize selects a level
var logger = zap.NewNop()

// LogLevelEnvVar selects the level when neither the flag nor the config
// file does. Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "LEMURIA_LOG_LEVEL"

// maxDumpBytes bounds the payload bytes rendered into one log entry
const maxDumpBytes = 256

// Initialize installs a console logger on stderr, keeping stdout for
// command output. An empty level falls back to LEMURIA_LOG_LEVEL; with
// neither set the emulator runs silent. Unrecognized levels log at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil || zapLevel > zapcore.ErrorLevel {
		zapLevel = zapcore.InfoLevel
	}

	encoder := zap.NewDevelopmentEncoderConfig()
	encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeCaller = zapcore.ShortCallerEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built.Named("lemuria")
	return nil
}

// GetLogger returns the process logger
func GetLogger() *zap.Logger {
	return logger
}

func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// LogConnection records a client session transition on the device socket
func LogConnection(remoteAddr string, event string) {
	Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogFrame logs one Asphodel frame at debug level. The hex dump is only
// built when debug is enabled, since this runs for every command and
// stream packet.
func LogFrame(direction string, messageType string, payload []byte) {
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug("Frame",
		zap.String("direction", direction),
		zap.String("message_type", messageType),
		zap.Int("length", len(payload)),
		zap.String("hex", hexDump(payload)),
	)
}

// LogRawBytes dumps bytes that could not be decoded as a frame
func LogRawBytes(label string, data []byte) {
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// asciiDump renders printable bytes and replaces the rest with '.'
func asciiDump(data []byte) string {
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b <= 0x7E {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// Sync flushes buffered entries
func Sync() {
	_ = logger.Sync()
}
