package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	UserID    *string                `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

type Logger struct {
	mu     sync.Mutex
	output io.Writer
	color  bool
	min    int
}

var globalLogger *Logger

var levelRank = map[LogLevel]int{LevelInfo: 0, LevelWarn: 1, LevelError: 2}

var levelColor = map[LogLevel]string{
	LevelInfo:  "\033[36m",
	LevelWarn:  "\033[33m",
	LevelError: "\033[31m",
}

func New(output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{output: output, color: output == os.Stdout}
}

// Init installs the process-wide logger writing to stdout.
func Init() {
	globalLogger = New(os.Stdout)
}

// SetOutput redirects the process-wide logger. Tests use it to capture entries.
func SetOutput(w io.Writer) {
	globalLogger = New(w)
}

// SetLevel drops entries below level. Unknown levels keep everything.
func SetLevel(level LogLevel) {
	if globalLogger == nil {
		return
	}
	globalLogger.mu.Lock()
	globalLogger.min = levelRank[level]
	globalLogger.mu.Unlock()
}

func (l *Logger) write(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":%q,"action":%q,"error":"unencodable details"}`, entry.Level, entry.Action))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if levelRank[entry.Level] < l.min {
		return
	}
	if l.color {
		fmt.Fprintf(l.output, "%s%s\033[0m\n", levelColor[entry.Level], data)
		return
	}
	fmt.Fprintf(l.output, "%s\n", data)
}

// emit is called directly by the exported helpers so the caller frame stays fixed.
func emit(level LogLevel, userID *string, action string, err error, details map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		UserID:    userID,
		Action:    action,
		Details:   details,
		Caller:    caller(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	globalLogger.write(entry)
}

func Info(action string, details map[string]interface{}) {
	emit(LevelInfo, nil, action, nil, details)
}

func InfoWithUser(userID string, action string, details map[string]interface{}) {
	emit(LevelInfo, &userID, action, nil, details)
}

func Warn(action string, details map[string]interface{}) {
	emit(LevelWarn, nil, action, nil, details)
}

func WarnWithUser(userID string, action string, details map[string]interface{}) {
	emit(LevelWarn, &userID, action, nil, details)
}

func Error(action string, err error, details map[string]interface{}) {
	emit(LevelError, nil, action, err, details)
}

func ErrorWithUser(userID string, action string, err error, details map[string]interface{}) {
	emit(LevelError, &userID, action, err, details)
}

// GetUserIDFromContext returns the authenticated user id stored by the auth middleware.
func GetUserIDFromContext(c *fiber.Ctx) *string {
	if userID := c.Locals("userID"); userID != nil {
		if id, ok := userID.(string); ok {
			return &id
		}
	}
	return nil
}

func caller() string {
	if _, file, line, ok := runtime.Caller(3); ok {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return ""
}

var sensitiveFields = []string{
	"password", "newPassword", "token", "accessToken", "refreshToken",
	"secret", "auth", "p256dh", "code",
}

func redactSensitiveFields(jsonMap map[string]interface{}) {
	for _, field := range sensitiveFields {
		if _, exists := jsonMap[field]; exists {
			jsonMap[field] = "[REDACTED]"
		}
	}
	if keys, ok := jsonMap["keys"].(map[string]interface{}); ok {
		redactSensitiveFields(keys)
	}
}

func GetRequestBodySummary(c *fiber.Ctx) string {
	body := c.Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(body, &jsonMap); err == nil {
		redactSensitiveFields(jsonMap)
		if jsonBytes, err := json.Marshal(jsonMap); err == nil {
			if len(jsonBytes) > 200 {
				return string(jsonBytes[:200]) + "..."
			}
			return string(jsonBytes)
		}
	}

	return fmt.Sprintf("binary (%d bytes)", len(body))
}

// GetResponseSizeSummary describes the response body. Streamed bodies (SSE) are never
// read: reading one blocks until the stream ends.
func GetResponseSizeSummary(c *fiber.Ctx) string {
	if c.Response().IsBodyStream() {
		return "stream"
	}
	body := c.Response().Body()
	switch {
	case len(body) == 0:
		return "empty"
	case len(body) > 1024:
		return fmt.Sprintf("large (%d bytes)", len(body))
	default:
		return fmt.Sprintf("small (%d bytes)", len(body))
	}
}

func GenerateRequestID() string {
	return uuid.New().String()
}
