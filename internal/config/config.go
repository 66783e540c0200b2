package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by FLEXMEASURES_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FLEXMEASURES_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 5000
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// SecretKey signs auth tokens.
func SecretKey() string {
	return os.Getenv("SECRET_KEY")
}

// TokenMaxAge returns how long auth tokens stay valid, as an ISO 8601
// duration or a number of seconds. Defaults to six hours.
func TokenMaxAge() time.Duration {
	raw := os.Getenv("SECURITY_TOKEN_MAX_AGE")
	if raw == "" {
		return 6 * time.Hour
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := timeseries.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return 6 * time.Hour
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// KafkaBrokers returns the comma separated KAFKA_BROKERS. Without brokers no
// sensor data events are published.
func KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func KafkaTopic() string {
	t := os.Getenv("KAFKA_TOPIC")
	if t == "" {
		return "flexmeasures.sensor-data"
	}
	return t
}

// ForecastInterval is how often the forecasting worker polls for jobs.
// Defaults to 30 seconds.
func ForecastInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("FORECAST_INTERVAL"))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AddressingScheme is the first part of entity addresses.
func AddressingScheme() string {
	s := os.Getenv("ADDRESSING_SCHEME")
	if s == "" {
		return "ea1"
	}
	return s
}

// NamingAuthority is the date-coded authority of entity addresses,
// e.g. 2018-06.localhost.
func NamingAuthority() string {
	a := os.Getenv("NAMING_AUTHORITY")
	if a == "" {
		return "2018-06.localhost"
	}
	return a
}

func ReportBucket() string {
	return os.Getenv("REPORT_S3_BUCKET")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
