package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultOverpassEndpoints are the public Overpass API mirrors queried when
// OVERPASS_ENDPOINTS is not set.
var defaultOverpassEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.openstreetmap.ru/api/interpreter",
	"https://lz4.overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.nchc.org.tw/api/interpreter",
}

// ParkingConfig holds the tunables of the nearby-spot resolution pipeline.
type ParkingConfig struct {
	OverpassEndpoints   []string
	ExternalTimeout     time.Duration
	ExternalMaxRetries  int
	ExternalBaseBackoff time.Duration
	CacheTTL            time.Duration
	CachePrecision      int // decimal places kept when quantizing bucket keys
	MaxRadiusKm         float64
	DefaultRadiusKm     float64
	ExpansionRadiiKm    []float64
	TargetResultCount   int
	DefaultLimit        int
}

type Config struct {
	// Server
	ServerPort string
	ServerEnv  string
	ServerHost string

	// Database
	DatabaseURL string

	// Redis (candidate-set cache; optional)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecretKey              string
	JWTAccessTokenExpireMin   int
	JWTRefreshTokenExpireDays int

	// Firebase
	FirebaseCredentialsPath string

	// SigNoz
	SigNozEndpoint string

	// Parking resolution
	Parking ParkingConfig
}

func Load() *Config {
	return &Config{
		// Server
		ServerPort: getEnv("SERVER_PORT", "3000"),
		ServerEnv:  getEnv("SERVER_ENV", "development"),
		ServerHost: getEnv("SERVER_HOST", "localhost:3000"),

		// Database - DATABASE_URL wins, otherwise composed from parts
		DatabaseURL: getDatabaseURL(),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecretKey:              getEnv("JWT_SECRET_KEY", ""),
		JWTAccessTokenExpireMin:   getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", 15),
		JWTRefreshTokenExpireDays: getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRE_DAYS", 7),

		// Firebase
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),

		// SigNoz
		SigNozEndpoint: getEnv("SIGNOZ_ENDPOINT", ""),

		Parking: ParkingConfig{
			OverpassEndpoints:   getEnvAsList("OVERPASS_ENDPOINTS", defaultOverpassEndpoints),
			ExternalTimeout:     getEnvAsSeconds("OVERPASS_TIMEOUT_SECONDS", 60),
			ExternalMaxRetries:  getEnvAsInt("OVERPASS_MAX_RETRIES", 3),
			ExternalBaseBackoff: getEnvAsSeconds("OVERPASS_BASE_BACKOFF_SECONDS", 1),
			CacheTTL:            getEnvAsSeconds("PARKING_CACHE_TTL_SECONDS", 86400),
			CachePrecision:      getEnvAsInt("PARKING_CACHE_PRECISION", 2),
			MaxRadiusKm:         getEnvAsFloat("PARKING_MAX_RADIUS_KM", 500),
			DefaultRadiusKm:     getEnvAsFloat("PARKING_DEFAULT_RADIUS_KM", 2),
			ExpansionRadiiKm:    getEnvAsFloats("PARKING_EXPANSION_RADII_KM", []float64{5, 10, 20, 50, 100, 200}),
			TargetResultCount:   getEnvAsInt("PARKING_TARGET_RESULT_COUNT", 40),
			DefaultLimit:        getEnvAsInt("PARKING_DEFAULT_LIMIT", 50),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

// getEnvAsList parses a comma-separated env var, trimming whitespace
func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsFloats parses a comma-separated list of numbers
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	var out []float64
	for _, part := range getEnvAsList(key, nil) {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getDatabaseURL returns DATABASE_URL or builds it from individual env vars
func getDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "postgres")
	password := getEnv("POSTGRES_PASSWORD", "")
	dbname := getEnv("POSTGRES_DB", "parking")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

// RedisAddr returns the host:port pair, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}
