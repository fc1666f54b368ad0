package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	Host                    string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port                    int           `env:"PORT,default=55555" validate:"min=0,max=65535"`
	HTTPPort                int           `env:"HTTP_PORT,default=0" validate:"min=0,max=65535"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	BadgerFilepath          string        `env:"BADGER_FILEPATH"`
	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"gt=0"`
	MaxMessageSize          int           `env:"MAX_MESSAGE_SIZE,default=4096" validate:"min=64"`
	IdleTimeout             time.Duration `env:"IDLE_TIMEOUT,default=0s" validate:"min=0"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=0" validate:"min=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
	ReapInterval            time.Duration `env:"REAP_INTERVAL,default=0s" validate:"min=0"`
	MetricInterval          time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	RestartInterval         time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	ModerationEnabled       bool          `env:"MODERATION_ENABLED,default=false"`
	CharReplacement         string        `env:"CHARACTER_REPLACEMENT,default=*" validate:"required"`
	Colours                 bool          `env:"COLOURS,default=true"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
}

// LoadConfig reads an optional .env file then the process environment.
func LoadConfig(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("dotenv: %w", err)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) HTTPAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// PrintBanner writes the startup summary, colourised when colours are enabled.
func (c Config) PrintBanner(w io.Writer) {
	title := "  ====== tchat server ======"
	if c.Colours {
		title = color.New(color.BgBlack, color.FgGreen).Render(title)
	}
	_, _ = fmt.Fprintln(w, title)

	storage := c.BadgerFilepath
	if storage == "" {
		storage = "in-memory"
	}
	httpAddr := "disabled"
	if c.HTTPPort > 0 {
		httpAddr = c.HTTPAddress()
	}
	rateLimit := "off"
	if c.RateLimitBurst > 0 {
		rateLimit = fmt.Sprintf("%d per %s", c.RateLimitBurst, c.RateLimitRefillInterval)
	}
	rows := [][2]string{
		{"chat", c.Address()},
		{"http", httpAddr},
		{"storage", storage},
		{"moderation", strconv.FormatBool(c.ModerationEnabled)},
		{"rate limit", rateLimit},
		{"log level", c.LogLevel},
	}
	for _, row := range rows {
		key := fmt.Sprintf("  %-11s", row[0])
		if c.Colours {
			key = color.Cyan.Sprint(key)
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", key, row[1])
	}
}
