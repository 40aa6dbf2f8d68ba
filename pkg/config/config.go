package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StoreMongo     = "mongo"

	AuthJWT      = "jwt"
	AuthFirebase = "firebase"

	PresenceReplace = "replace"
	PresenceMulti   = "multi"
)

type Config struct {
	ServerPort  string `yaml:"server_port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	StoreDriver           string `yaml:"store_driver"`
	FirebaseProject       string `yaml:"firebase_project_id"`
	FirebaseCredentials   string `yaml:"firebase_service_account_path"`
	FirebaseCredentialsJS string `yaml:"-"`
	MongoURI              string `yaml:"mongo_uri"`
	MongoDatabase         string `yaml:"mongo_database"`
	StorageBucket         string `yaml:"storage_bucket"`

	AuthProvider string `yaml:"auth_provider"`
	JWTSecret    string `yaml:"-"`
	JWTExpiry    int64  `yaml:"jwt_expiry"`

	AllowedOrigins   []string `yaml:"allowed_origins"`
	PresencePolicy   string   `yaml:"presence_policy"`
	SendRatePerMin   int      `yaml:"send_rate_per_min"`
	TypingRatePerMin int      `yaml:"typing_rate_per_min"`
}

func defaults() *Config {
	return &Config{
		ServerPort:       "8080",
		Environment:      "development",
		LogLevel:         "info",
		StoreDriver:      StoreMemory,
		MongoDatabase:    "pairchat",
		AuthProvider:     AuthJWT,
		JWTSecret:        "your-secret-key",
		JWTExpiry:        24 * 60 * 60, // 24 hours
		AllowedOrigins:   []string{"http://localhost:5173"},
		PresencePolicy:   PresenceReplace,
		SendRatePerMin:   60,
		TypingRatePerMin: 30,
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then the environment (including a .env file).
func Load() (*Config, error) {
	godotenv.Load()

	config := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	config.ServerPort = getEnv("SERVER_PORT", config.ServerPort)
	config.Environment = getEnv("ENVIRONMENT", config.Environment)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.StoreDriver = getEnv("STORE_DRIVER", config.StoreDriver)
	config.FirebaseProject = getEnv("FIREBASE_PROJECT_ID", config.FirebaseProject)
	config.FirebaseCredentials = getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", config.FirebaseCredentials)
	config.FirebaseCredentialsJS = getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", config.FirebaseCredentialsJS)
	config.MongoURI = getEnv("MONGO_URI", config.MongoURI)
	config.MongoDatabase = getEnv("MONGO_DATABASE", config.MongoDatabase)
	config.StorageBucket = getEnv("STORAGE_BUCKET", config.StorageBucket)
	config.AuthProvider = getEnv("AUTH_PROVIDER", config.AuthProvider)
	config.JWTSecret = getEnv("JWT_SECRET", config.JWTSecret)
	config.JWTExpiry = getEnvAsInt64("JWT_EXPIRY", config.JWTExpiry)
	config.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", config.AllowedOrigins)
	config.PresencePolicy = getEnv("PRESENCE_POLICY", config.PresencePolicy)
	config.SendRatePerMin = int(getEnvAsInt64("SEND_RATE_PER_MIN", int64(config.SendRatePerMin)))
	config.TypingRatePerMin = int(getEnvAsInt64("TYPING_RATE_PER_MIN", int64(config.TypingRatePerMin)))

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreFirestore:
		if c.FirebaseProject == "" {
			return fmt.Errorf("STORE_DRIVER=firestore requires FIREBASE_PROJECT_ID")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORE_DRIVER=mongo requires MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AuthProvider {
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_PROVIDER=jwt requires JWT_SECRET")
		}
	case AuthFirebase:
		if c.FirebaseProject == "" {
			return fmt.Errorf("AUTH_PROVIDER=firebase requires FIREBASE_PROJECT_ID")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}

	if c.PresencePolicy != PresenceReplace && c.PresencePolicy != PresenceMulti {
		return fmt.Errorf("unknown PRESENCE_POLICY %q", c.PresencePolicy)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
