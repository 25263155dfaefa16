package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	URL               string
	DatabaseName      string
	BaseURL           string
	Port              string
	LicenseValidity   time.Duration
	GracePeriodLength time.Duration
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	logger := zap.NewExample()
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:               os.Getenv("DB_URI"),
		DatabaseName:      os.Getenv("DB_NAME"),
		BaseURL:           os.Getenv("BASE_URL"),
		Port:              os.Getenv("PORT"),
		LicenseValidity:   durationDays("LICENSE_VALIDITY_DAYS", 30),
		GracePeriodLength: durationDays("GRACE_PERIOD_DAYS", 7),
	}

}

// durationDays reads a day-count env var, falling back to def when unset or unparsable
func durationDays(key string, def int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * 24 * time.Hour
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		zap.S().Warnw("invalid day-count env var, using default", "key", key, "value", v)
		return time.Duration(def) * 24 * time.Hour
	}
	return time.Duration(days) * 24 * time.Hour
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"response": "%s, %v"}`, message, err)))
	return
}
