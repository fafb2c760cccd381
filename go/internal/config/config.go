// Package config holds the typed settings of the relay, actuator and sender
// binaries. Values come from defaults, an optional YAML file and environment
// variables, in that order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDiscoveryService  = "_fakemouse._tcp"
	DefaultReconnectInterval = 3 * time.Second
)

// Relay configures the broadcast relay server.
type Relay struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`

	Connection struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBuffer     int           `yaml:"send_buffer"`
	} `yaml:"connection"`

	NATS struct {
		URL           string        `yaml:"url"`
		Subject       string        `yaml:"subject"`
		ReconnectWait time.Duration `yaml:"reconnect_wait"`
	} `yaml:"nats"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Key      string `yaml:"key"`
		// TTL bounds how long a mirrored frame outlives the relays that
		// wrote it. Zero keeps it until overwritten.
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Discovery struct {
		Enabled  bool   `yaml:"enabled"`
		Service  string `yaml:"service"`
		Instance string `yaml:"instance"`
	} `yaml:"discovery"`
}

// Actuator configures the fake cursor peer.
type Actuator struct {
	RelayURL          string
	DiscoveryService  string
	ReconnectInterval time.Duration
	PagePath          string
	LogLevel          string

	IdleMin      time.Duration
	IdleMax      time.Duration
	StepInterval time.Duration
	SessionMin   time.Duration
	SessionMax   time.Duration
	StopOnInput  bool
	Seed         int64
}

// Sender configures the touch pad peer.
type Sender struct {
	RelayURL          string
	DiscoveryService  string
	ReconnectInterval time.Duration
	LogLevel          string

	ViewportWidth    float64
	ViewportHeight   float64
	LongPress        time.Duration
	MoveThreshold    float64
	ThrottleInterval time.Duration
}

// LoadEnv loads a .env file when one is present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
}

// DefaultRelay returns the relay defaults.
func DefaultRelay() Relay {
	var c Relay
	c.Addr = ":8765"
	c.AllowedOrigins = []string{"*"}
	c.LogLevel = "info"
	c.Connection.WriteTimeout = 10 * time.Second
	c.Connection.ReadTimeout = 60 * time.Second
	c.Connection.PingInterval = 30 * time.Second
	c.Connection.MaxMessageSize = 64 * 1024
	c.Connection.SendBuffer = 256
	c.NATS.Subject = "fakemouse.relay"
	c.NATS.ReconnectWait = 2 * time.Second
	c.Redis.Key = "fakemouse:latest"
	c.Redis.TTL = 10 * time.Minute
	c.Discovery.Service = DefaultDiscoveryService
	return c
}

// LoadRelay reads the relay configuration. path may be empty.
func LoadRelay(path string) (Relay, error) {
	c := DefaultRelay()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	c.Addr = getEnv("RELAY_ADDR", c.Addr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if origins := getEnv("RELAY_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = getEnvAsDuration("REDIS_SNAPSHOT_TTL", c.Redis.TTL)
	c.Discovery.Enabled = getEnvAsBool("RELAY_MDNS", c.Discovery.Enabled)

	if c.Connection.SendBuffer < 1 {
		return c, fmt.Errorf("connection.send_buffer must be positive, got %d", c.Connection.SendBuffer)
	}
	return c, nil
}

// LoadActuator reads the actuator configuration from the environment.
func LoadActuator() (Actuator, error) {
	c := Actuator{
		RelayURL:          getEnv("RELAY_URL", ""),
		DiscoveryService:  getEnv("DISCOVERY_SERVICE", DefaultDiscoveryService),
		ReconnectInterval: getEnvAsDuration("RECONNECT_INTERVAL", DefaultReconnectInterval),
		PagePath:          getEnv("ACTUATOR_PAGE", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		IdleMin:           getEnvAsDuration("IDLE_MIN", 30*time.Second),
		IdleMax:           getEnvAsDuration("IDLE_MAX", 60*time.Second),
		StepInterval:      getEnvAsDuration("WANDER_STEP", 500*time.Millisecond),
		SessionMin:        getEnvAsDuration("WANDER_SESSION_MIN", 10*time.Second),
		SessionMax:        getEnvAsDuration("WANDER_SESSION_MAX", 60*time.Second),
		StopOnInput:       getEnvAsBool("WANDER_STOP_ON_INPUT", false),
		Seed:              int64(getEnvAsInt("WANDER_SEED", int(time.Now().UnixNano()))),
	}

	if c.IdleMax < c.IdleMin {
		return c, fmt.Errorf("IDLE_MAX (%s) is shorter than IDLE_MIN (%s)", c.IdleMax, c.IdleMin)
	}
	if c.SessionMax < c.SessionMin {
		return c, fmt.Errorf("WANDER_SESSION_MAX (%s) is shorter than WANDER_SESSION_MIN (%s)", c.SessionMax, c.SessionMin)
	}
	return c, nil
}

// LoadSender reads the sender configuration from the environment.
func LoadSender() (Sender, error) {
	c := Sender{
		RelayURL:          getEnv("RELAY_URL", ""),
		DiscoveryService:  getEnv("DISCOVERY_SERVICE", DefaultDiscoveryService),
		ReconnectInterval: getEnvAsDuration("RECONNECT_INTERVAL", DefaultReconnectInterval),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ViewportWidth:     getEnvAsFloat("VIEWPORT_WIDTH", 390),
		ViewportHeight:    getEnvAsFloat("VIEWPORT_HEIGHT", 844),
		LongPress:         getEnvAsDuration("LONG_PRESS", 300*time.Millisecond),
		MoveThreshold:     getEnvAsFloat("MOVE_THRESHOLD", 5),
		ThrottleInterval:  getEnvAsDuration("SENSOR_INTERVAL", 50*time.Millisecond),
	}

	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return c, fmt.Errorf("viewport must be positive, got %vx%v", c.ViewportWidth, c.ViewportHeight)
	}
	return c, nil
}

// SetupLogging points the global zerolog logger at a console writer.
func SetupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
