package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	PushExpo = "expo"
	PushFCM  = "fcm"
	PushNone = "none"
)

type Config struct {
	ServerPort  string
	Environment string

	FirebaseProject    string
	ServiceAccountJSON string
	ServiceAccountPath string

	StoreBackend string

	PushProvider      string
	ExpoHost          string
	ExpoAccessToken   string
	PushTimeout       time.Duration
	NotificationTitle string
	NotifyShowAlert   bool
	NotifyPlaySound   bool
	NotifySetBadge    bool

	SendRatePerMinute int
	SendBurst         int
	WSSendBuffer      int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		FirebaseProject:    getEnv("FIREBASE_PROJECT_ID", ""),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),

		StoreBackend: getEnv("STORE_BACKEND", StoreFirestore),

		PushProvider:      getEnv("PUSH_PROVIDER", PushExpo),
		ExpoHost:          getEnv("EXPO_HOST", "https://exp.host"),
		ExpoAccessToken:   getEnv("EXPO_ACCESS_TOKEN", ""),
		PushTimeout:       getEnvAsDuration("PUSH_TIMEOUT", 10*time.Second),
		NotificationTitle: getEnv("NOTIFICATION_TITLE", "Nuevo mensaje"),
		NotifyShowAlert:   getEnvAsBool("NOTIFY_SHOW_ALERT", true),
		NotifyPlaySound:   getEnvAsBool("NOTIFY_PLAY_SOUND", true),
		NotifySetBadge:    getEnvAsBool("NOTIFY_SET_BADGE", false),

		SendRatePerMinute: getEnvAsInt("SEND_RATE_PER_MINUTE", 30),
		SendBurst:         getEnvAsInt("SEND_BURST", 10),
		WSSendBuffer:      getEnvAsInt("WS_SEND_BUFFER", 256),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFirestore:
		if c.FirebaseProject == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the %s store backend", StoreFirestore)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PushProvider {
	case PushExpo, PushFCM, PushNone:
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.PushProvider)
	}

	if c.PushProvider == PushFCM && c.FirebaseProject == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required for the %s push provider", PushFCM)
	}

	if c.SendRatePerMinute <= 0 || c.SendBurst <= 0 {
		return fmt.Errorf("SEND_RATE_PER_MINUTE and SEND_BURST must be positive")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// NeedsFirebase reports whether a Firebase app must be initialized.
func (c *Config) NeedsFirebase() bool {
	return c.FirebaseProject != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
