// Package logger provides leveled, structured logging for all modules.
// Output goes through the standard library logger; set LOG_FORMAT=json for
// machine-readable output and LOG_LEVEL=debug to enable debug messages.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// F is a convenience constructor for a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Info logs informational messages
func Info(msg string, fields ...Field) {
	emit("INFO", msg, fields...)
}

// Warn logs warning messages
func Warn(msg string, fields ...Field) {
	emit("WARN", msg, fields...)
}

// Error logs error messages
func Error(msg string, fields ...Field) {
	emit("ERROR", msg, fields...)
}

// Debug logs debug messages; suppressed unless LOG_LEVEL=debug
func Debug(msg string, fields ...Field) {
	if strings.ToLower(os.Getenv("LOG_LEVEL")) != "debug" {
		return
	}
	emit("DEBUG", msg, fields...)
}

func emit(level, msg string, fields ...Field) {
	if os.Getenv("LOG_FORMAT") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level,
			"message":   msg,
		}
		for _, f := range fields {
			entry[f.Key] = fmt.Sprintf("%v", f.Value)
		}
		if data, err := json.Marshal(entry); err == nil {
			log.Println(string(data))
			return
		}
	}

	if len(fields) == 0 {
		log.Printf("%s: %s", level, msg)
		return
	}

	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	log.Printf("%s: %s%s", level, msg, b.String())
}
