package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"nowait/queue-service/internal/models"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	Locations             []models.Location
	TravelWindow          int
	AvgConsultMinutes     int
	DoctorLateGrace       time.Duration
	DoctorLateInterval    time.Duration
	RequirePayment        bool
	EnforceCapacity       bool
	SnapshotTTL           time.Duration
	AnnounceProvider      string
	AnnounceQueueSize     int
	AuditSink             string
	AuditWebhookToken     string
	AuditDatabaseURL      string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RateLimitPerMinute    int
	RateLimitBurst        int
	LocationRatePerMinute int
	LocationRateBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                  port,
		Locations:             readLocations("LOCATIONS_FILE"),
		TravelWindow:          readInt("TRAVEL_WINDOW", 5),
		AvgConsultMinutes:     readInt("AVG_CONSULT_MINUTES", 15),
		DoctorLateGrace:       readDurationSeconds("DOCTOR_LATE_GRACE_SECONDS", 600),
		DoctorLateInterval:    readDurationSeconds("DOCTOR_LATE_SCAN_INTERVAL_SECONDS", 30),
		RequirePayment:        readBool("REQUIRE_PAYMENT", false),
		EnforceCapacity:       readBool("ENFORCE_CAPACITY", true),
		SnapshotTTL:           readDurationSeconds("SNAPSHOT_CACHE_TTL_SECONDS", 2),
		AnnounceProvider:      os.Getenv("ANNOUNCE_PROVIDER"),
		AnnounceQueueSize:     readInt("ANNOUNCE_QUEUE_SIZE", 32),
		AuditSink:             os.Getenv("AUDIT_SINK"),
		AuditWebhookToken:     os.Getenv("AUDIT_WEBHOOK_TOKEN"),
		AuditDatabaseURL:      os.Getenv("AUDIT_DB_DSN"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               readInt("REDIS_DB", 0),
		RateLimitPerMinute:    readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:        readInt("RATE_LIMIT_BURST", 30),
		LocationRatePerMinute: readInt("LOCATION_RATE_LIMIT_PER_MIN", 600),
		LocationRateBurst:     readInt("LOCATION_RATE_LIMIT_BURST", 120),
	}
}

// readLocations loads practice locations from a JSON file. With no file
// configured a single default OPD location is used, matching the
// practice-setup defaults.
func readLocations(key string) []models.Location {
	fallback := []models.Location{{
		LocationID: "main",
		Name:       "Main OPD",
		Fee:        1000,
		Days:       []string{"Monday", "Tuesday", "Wednesday"},
		Slots:      []models.Slot{{Start: "09:00", End: "13:00", MaxOPD: 25}},
	}}

	path := os.Getenv(key)
	if path == "" {
		return fallback
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	var locations []models.Location
	if err := json.Unmarshal(raw, &locations); err != nil {
		return fallback
	}
	if len(locations) == 0 {
		return fallback
	}
	return locations
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
