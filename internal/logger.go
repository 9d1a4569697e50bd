package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Redactor removes sensitive data from a log line before it is written.
type Redactor interface {
	Redact(input string) string
}

// CredentialRedactor redacts Instagram session cookies and credentials.
// Session IDs and CSRF tokens grant full account access, so they never
// reach a log line in the clear.
type CredentialRedactor struct{}

// Prefixes whose trailing value must be blanked out.
var sensitivePrefixes = []string{
	"sessionid=",
	"csrftoken=",
	"ds_user_id=",
	"password=",
	"enc_password=",
	"X-CSRFToken:",
	"Cookie:",
	"Set-Cookie:",
	"Authorization:",
}

// Redact implements the Redactor interface
func (r *CredentialRedactor) Redact(input string) string {
	result := input
	lower := strings.ToLower(result)
	for _, prefix := range sensitivePrefixes {
		idx := strings.Index(lower, strings.ToLower(prefix))
		for idx != -1 {
			start := idx + len(prefix)
			end := start
			for end < len(result) && !isValueBoundary(result[end]) {
				end++
			}
			if end > start {
				result = result[:start] + "[REDACTED]" + result[end:]
				lower = strings.ToLower(result)
			}
			next := strings.Index(lower[idx+len(prefix):], strings.ToLower(prefix))
			if next == -1 {
				break
			}
			idx = idx + len(prefix) + next
		}
	}
	return result
}

func isValueBoundary(c byte) bool {
	return c == ' ' || c == ';' || c == '&' || c == '\n' || c == '\r'
}

// SecureLogger provides leveled logging with sensitive data redaction
type SecureLogger struct {
	logger    *log.Logger
	level     LogLevel
	debug     bool
	quiet     bool
	redactors []Redactor
}

// NewSecureLogger creates a new secure logger
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	return &SecureLogger{
		logger: log.New(output, "", 0),
		level:  level,
		debug:  debug,
		quiet:  quiet,
		redactors: []Redactor{
			&CredentialRedactor{},
		},
	}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}
	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

// SetLevel updates the minimum level that will be written.
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.level = level
}

// SetDebug toggles debug mode.
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.debug = debug
}

// SetQuiet toggles quiet mode (errors only).
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.quiet = quiet
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

func (sl *SecureLogger) write(level LogLevel, format string, args ...interface{}) {
	if !sl.shouldLog(level) {
		return
	}
	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	sl.logger.Printf("[%s] %s %s", timestamp, level, message)
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.write(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.write(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.write(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.write(LogLevelDebug, format, args...)
}
