package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	HTTPHost           string        `env:"HTTP_HOST,default=0.0.0.0"`
	HTTPPort           int           `env:"HTTP_PORT,default=8080"`
	GRPCPort           int           `env:"GRPC_PORT,default=9090"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath     string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath      string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir          string        `env:"UPLOAD_DIR,default=./uploads"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	JWTSecret          string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration  time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS,default=*"`
	DebugInspectorPort int           `env:"DEBUG_INSPECTOR_PORT,default=8081"`

	TypingTimeout        time.Duration `env:"TYPING_TIMEOUT,default=2s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=250ms"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=1s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=5000"`
	MaxUploadSize    int    `env:"MAX_UPLOAD_SIZE,default=10485760"`
	EnableModeration bool   `env:"ENABLE_MODERATION,default=false"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	// Empty means a single node without broker
	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL,default=dm-lab:deliveries"`
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

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func (c Config) UploadURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/uploads"
}
