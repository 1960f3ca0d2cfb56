package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sjsage522/mallcrawler/logger"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(siteKey string, err error)
	LogInfo(format string, args ...interface{})
}

// ErrorLog appends per-site failures to a file and mirrors info to zerolog
type ErrorLog struct {
	mu        sync.Mutex
	errorFile string
}

// NewErrorLog creates a new error log writing to errorFile
func NewErrorLog(errorFile string) *ErrorLog {
	return &ErrorLog{
		errorFile: errorFile,
	}
}

// LogError logs an error to a file with site key and timestamp
func (l *ErrorLog) LogError(siteKey string, err error) {
	logger.ForSite(siteKey).Error().Err(err).Msg("Crawl failed")

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.errorFile); dir != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			logger.Error("failed to create error log directory: %v", mkErr)
			return
		}
	}

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		logger.Error("failed to open error log: %v", fileErr)
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, siteKey, err.Error())
}

// LogInfo logs an informational message
func (l *ErrorLog) LogInfo(format string, args ...interface{}) {
	logger.Info(format, args...)
}
