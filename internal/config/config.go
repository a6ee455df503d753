package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBDSN    string
	MediaDir string
	LogFile  string

	// Verification gateway
	GeminiAPIKey   string
	GeminiBaseURL  string
	GeminiModel    string
	GatewayTimeout time.Duration
	SimRejectRate  float64
	SimSeed        uint64
	SimDelay       time.Duration

	// Kiosk
	ResultDisplayDelay time.Duration
	CameraSnapshotPath string

	// Proof replay guard
	RedisAddr      string
	ProofReplayTTL time.Duration

	// Ledger events
	KafkaBrokers []string
	KafkaTopic   string

	CookieSecure bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	cfg := Config{
		Port:     getenv("PORT", "8080"),
		DBDSN:    getenv("DB_DSN", "kantin.db"), // sqlite file in project root
		MediaDir: getenv("MEDIA_DIR", "./web/media"),
		LogFile:  getenv("LOG_FILE", "./kantin.log"),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:  getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		GatewayTimeout: getduration("GATEWAY_TIMEOUT", 30*time.Second),
		SimRejectRate:  getfloat("SIM_REJECT_RATE", 0.1),
		SimSeed:        getuint("SIM_SEED", uint64(time.Now().UnixNano())),
		SimDelay:       getduration("SIM_DELAY", 2*time.Second),

		ResultDisplayDelay: getduration("RESULT_DISPLAY_DELAY", 2*time.Second),
		CameraSnapshotPath: os.Getenv("CAMERA_SNAPSHOT_PATH"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		ProofReplayTTL: getduration("PROOF_REPLAY_TTL", 30*24*time.Hour),

		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "kantin.ledger"),

		CookieSecure: getenv("COOKIE_SECURE", "false") == "true",
	}

	gateway := "simulator"
	if cfg.GeminiAPIKey != "" {
		gateway = "gemini"
	}
	log.Printf("[config] PORT=%s DB_DSN=%s MEDIA_DIR=%s LOG_FILE=%s GATEWAY=%s REDIS=%t KAFKA=%t",
		cfg.Port, cfg.DBDSN, cfg.MediaDir, cfg.LogFile, gateway, cfg.RedisAddr != "", len(cfg.KafkaBrokers) > 0)
	return cfg
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] bad %s=%q, using %s", k, v, def)
		return def
	}
	return d
}

func getfloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		log.Printf("[config] bad %s=%q, using %v", k, v, def)
		return def
	}
	return f
}

func getuint(k string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.Printf("[config] bad %s=%q, using %d", k, v, def)
		return def
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
