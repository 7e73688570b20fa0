package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"miqat/internal/models"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	Location struct {
		// Fallback when every source fails (Kolkata).
		Default        models.Coordinate
		GPSHighTimeout time.Duration
		GPSLowTimeout  time.Duration
		IPTimeout      time.Duration
		// GPS accuracy worse than this is flagged as a low-accuracy advisory.
		AccuracyThresholdMeters float64
	}

	Calculation struct {
		School     models.School
		Convention models.Convention // empty = auto-select by region
		// Bounding box inside which the Karachi convention is auto-selected.
		SouthAsiaMinLat float64
		SouthAsiaMaxLat float64
		SouthAsiaMinLon float64
		SouthAsiaMaxLon float64
		// Fixed day offset applied to the secondary-calendar estimate for
		// conventions known to run ahead of local sighting. Empirical; see
		// DESIGN.md before changing.
		KarachiDayOffset int
	}

	Forbidden struct {
		SafetyBufferMinutes int
		ZawalBufferMinutes  int
	}

	Cache struct {
		MaxPlaceNames int
	}

	Store struct {
		Path string
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}

	Services struct {
		CalendarBaseURL string
		GeocodeBaseURL  string
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Location resolution
	cfg.Location.Default = models.Coordinate{
		Latitude:  parseFloat(getEnv("DEFAULT_LAT", "22.5726")),
		Longitude: parseFloat(getEnv("DEFAULT_LON", "88.3639")),
	}
	cfg.Location.GPSHighTimeout = parseDuration(getEnv("GPS_HIGH_TIMEOUT", "15s"))
	cfg.Location.GPSLowTimeout = parseDuration(getEnv("GPS_LOW_TIMEOUT", "10s"))
	cfg.Location.IPTimeout = parseDuration(getEnv("IP_FETCH_TIMEOUT", "4s"))
	cfg.Location.AccuracyThresholdMeters = parseFloat(getEnv("GPS_ACCURACY_THRESHOLD_M", "1500"))

	// Calculation settings
	cfg.Calculation.School = models.School(getEnv("SCHOOL", string(models.SchoolHanafi)))
	cfg.Calculation.Convention = models.Convention(getEnv("CONVENTION", ""))
	cfg.Calculation.SouthAsiaMinLat = parseFloat(getEnv("SOUTH_ASIA_MIN_LAT", "5"))
	cfg.Calculation.SouthAsiaMaxLat = parseFloat(getEnv("SOUTH_ASIA_MAX_LAT", "38"))
	cfg.Calculation.SouthAsiaMinLon = parseFloat(getEnv("SOUTH_ASIA_MIN_LON", "60"))
	cfg.Calculation.SouthAsiaMaxLon = parseFloat(getEnv("SOUTH_ASIA_MAX_LON", "98"))
	cfg.Calculation.KarachiDayOffset = parseInt(getEnv("KARACHI_DAY_OFFSET", "-1"))

	// Forbidden-window buffers
	cfg.Forbidden.SafetyBufferMinutes = parseInt(getEnv("MAKRUH_BUFFER_MINUTES", "5"))
	cfg.Forbidden.ZawalBufferMinutes = parseInt(getEnv("ZAWAL_BUFFER_MINUTES", "10"))

	// Cache configuration
	cfg.Cache.MaxPlaceNames = parseInt(getEnv("MAX_CACHED_PLACES", "100"))

	// Persistence
	cfg.Store.Path = getEnv("STORE_PATH", "miqat.db")

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "3"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "2"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	// External services
	cfg.Services.CalendarBaseURL = getEnv("CALENDAR_API_URL", "https://api.aladhan.com/v1")
	cfg.Services.GeocodeBaseURL = getEnv("GEOCODE_API_URL", "https://nominatim.openstreetmap.org")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}
