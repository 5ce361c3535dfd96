package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. All components write through it so
// concurrent handlers never interleave partial lines.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON access-log line per HTTP request.
func LogRequest(method, path string, status int, elapsed time.Duration, requestID string) {
	entry := map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "info",
		"msg":         "http_request",
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	}
	if requestID != "" {
		entry["request_id"] = requestID
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
