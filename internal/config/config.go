package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/ratelimit"
)

// Duration lets yaml carry Go duration strings ("30s", "15m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the file-backed part of server configuration. Secrets and
// connection addresses come from the environment instead (see FromEnv).
type Config struct {
	Server struct {
		Addr            string   `yaml:"addr"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`

	Feed struct {
		// Buffered snapshots per subscriber before stale drops kick in.
		BufferSize int      `yaml:"buffer_size"`
		PingPeriod Duration `yaml:"ping_period"`
	} `yaml:"feed"`

	Replication struct {
		PollInterval Duration `yaml:"poll_interval"`
		BatchSize    int      `yaml:"batch_size"`
	} `yaml:"replication"`
}

// Env carries environment-sourced settings.
type Env struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	RedisAddr  string
	NatsURL    string // optional; empty disables the fanout
	JWTKey     string
	IPSalt     string
}

func FromEnv() Env {
	return Env{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		NatsURL:    os.Getenv("NATS_URL"),
		JWTKey:     os.Getenv("JWT_SIGNING_KEY"),
		IPSalt:     os.Getenv("RATELIMIT_IP_SALT"),
	}
}

func (e Env) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
		e.DBHost, e.DBUser, e.DBPassword, e.DBName)
}

func defaults() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Server.ShutdownTimeout = Duration(10 * time.Second)
	c.RateLimit.GlobalIP = ratelimit.LimitConfig{Rate: 300, Window: time.Minute}
	c.RateLimit.User = ratelimit.LimitConfig{Rate: 120, Window: time.Minute}
	c.RateLimit.Login = ratelimit.LimitConfig{Rate: 5, Window: 15 * time.Minute}
	c.Feed.BufferSize = 4
	c.Feed.PingPeriod = Duration(30 * time.Second)
	c.Replication.PollInterval = Duration(5 * time.Second)
	c.Replication.BatchSize = 200
	return c
}

// Load reads the yaml file at path over the built-in defaults. A missing
// file is not an error; defaults apply.
func Load(path string) (Config, error) {
	c := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Store holds the live config and swaps it atomically on reload.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  Config
}

func NewStore(path string, initial Config) *Store {
	return &Store{path: path, cur: initial}
}

func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
	return nil
}
