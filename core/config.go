package core

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/chilic/espcam-go/camera"
	"github.com/chilic/espcam-go/indicator"
	"github.com/chilic/espcam-go/logger"
	"github.com/chilic/espcam-go/multipart"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config mirrors config.yaml.
type Config struct {
	Network struct {
		Interface      string        `mapstructure:"interface"`
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		MaxDiagnostics int           `mapstructure:"max_diagnostics"`
	} `mapstructure:"network"`

	Camera struct {
		Driver      string `mapstructure:"driver"`
		Device      string `mapstructure:"device"`
		Width       int    `mapstructure:"width"`
		Height      int    `mapstructure:"height"`
		JPEGQuality int    `mapstructure:"jpeg_quality"`
		Pipeline    string `mapstructure:"pipeline"`
	} `mapstructure:"camera"`

	Telegram struct {
		APIHost string `mapstructure:"api_host"`
		BotID   string `mapstructure:"bot_id"`
		ChatID  string `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Upload struct {
		Boundary     string        `mapstructure:"boundary"`
		CABundle     string        `mapstructure:"ca_bundle"`
		WindowSize   int           `mapstructure:"window_size"`
		Timeout      time.Duration `mapstructure:"timeout"`
		Filename     string        `mapstructure:"filename"`
		MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	} `mapstructure:"upload"`

	Loop struct {
		Interval    time.Duration `mapstructure:"interval"`
		SettleDelay time.Duration `mapstructure:"settle_delay"`
	} `mapstructure:"loop"`

	Indicator struct {
		Kind       string  `mapstructure:"kind"`
		Path       string  `mapstructure:"path"`
		ToneHz     float64 `mapstructure:"tone_hz"`
		SampleRate int     `mapstructure:"sample_rate"`
	} `mapstructure:"indicator"`

	Monitor struct {
		URL      string `mapstructure:"url"`
		Token    string `mapstructure:"token"`
		DeviceID string `mapstructure:"device_id"`

		// ReportTimeout bounds each report, dial included.
		ReportTimeout time.Duration `mapstructure:"report_timeout"`
	} `mapstructure:"monitor"`

	Logging struct {
		Level      string   `mapstructure:"level"`
		Outputs    []string `mapstructure:"outputs"`
		MaxSizeMB  int      `mapstructure:"max_size_mb"`
		MaxBackups int      `mapstructure:"max_backups"`
		MaxAgeDays int      `mapstructure:"max_age_days"`
		Compress   bool     `mapstructure:"compress"`
	} `mapstructure:"logging"`

	Debug bool `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.interface", "wlan0")
	v.SetDefault("network.poll_interval", time.Second)
	v.SetDefault("network.max_diagnostics", 60)

	v.SetDefault("camera.driver", "gocv")
	v.SetDefault("camera.device", "0")
	v.SetDefault("camera.width", 800)
	v.SetDefault("camera.height", 600)
	v.SetDefault("camera.jpeg_quality", 80)
	v.SetDefault("camera.pipeline", "")

	v.SetDefault("telegram.api_host", "api.telegram.org")
	v.SetDefault("telegram.bot_id", "")
	v.SetDefault("telegram.chat_id", "")

	v.SetDefault("upload.boundary", multipart.DefaultBoundary)
	v.SetDefault("upload.ca_bundle", "")
	v.SetDefault("upload.window_size", 3048)
	v.SetDefault("upload.timeout", 60*time.Second)
	v.SetDefault("upload.filename", "hoge.jpg")
	v.SetDefault("upload.max_body_bytes", 4<<20)

	v.SetDefault("loop.interval", 10*time.Second)
	v.SetDefault("loop.settle_delay", time.Second)

	v.SetDefault("indicator.kind", "log")
	v.SetDefault("indicator.path", "")
	v.SetDefault("indicator.tone_hz", 2000.0)
	v.SetDefault("indicator.sample_rate", 16000)

	v.SetDefault("monitor.url", "")
	v.SetDefault("monitor.token", "")
	v.SetDefault("monitor.device_id", "")
	v.SetDefault("monitor.report_timeout", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.outputs", []string{"stdout"})
	v.SetDefault("logging.max_size_mb", 5)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.compress", false)

	v.SetDefault("debug", false)
}

// LoadConfig reads configPath, or searches ./config.yaml, ./config/config.yaml
// and /etc/espcam/config.yaml when it is empty. A missing searched file is not
// an error. Secrets may come from the environment or a .env file.
func LoadConfig(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %v", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/espcam")
	}

	setDefaults(v)
	_ = v.BindEnv("telegram.bot_id", "TELEGRAM_BOT_ID")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("monitor.token", "ESPCAM_MONITOR_TOKEN")
	_ = v.BindEnv("debug", "ESPCAM_DEBUG")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []string
	if c.Telegram.BotID == "" {
		problems = append(problems, "telegram.bot_id is required")
	}
	if c.Telegram.ChatID == "" {
		problems = append(problems, "telegram.chat_id is required")
	}
	if c.Telegram.APIHost == "" {
		problems = append(problems, "telegram.api_host is required")
	}
	if err := multipart.ValidateBoundary(c.Upload.Boundary); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Upload.WindowSize <= 0 {
		problems = append(problems, "upload.window_size must be positive")
	}
	if c.Upload.Filename == "" {
		problems = append(problems, "upload.filename is required")
	}
	if c.Loop.Interval <= 0 {
		problems = append(problems, "loop.interval must be positive")
	}
	if c.Loop.SettleDelay < 0 {
		problems = append(problems, "loop.settle_delay must not be negative")
	}
	if c.Network.PollInterval <= 0 {
		problems = append(problems, "network.poll_interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SendPhotoURL is the Bot API endpoint. It embeds the bot token; log it through
// RedactURL only.
func (c Config) SendPhotoURL() string {
	return fmt.Sprintf("https://%s/bot%s/sendPhoto", c.Telegram.APIHost, c.Telegram.BotID)
}

// RedactURL hides a Bot API token in a URL path.
func RedactURL(u string) string {
	i := strings.Index(u, "/bot")
	if i < 0 {
		return u
	}
	rest := u[i+len("/bot"):]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		j = len(rest)
	}
	return u[:i] + "/bot***" + rest[j:]
}

func (c Config) CameraConfig() camera.Config {
	return camera.Config{
		Device:      c.Camera.Device,
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		JPEGQuality: c.Camera.JPEGQuality,
		Pipeline:    c.Camera.Pipeline,
	}
}

func (c Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		Kind:       c.Indicator.Kind,
		Path:       c.Indicator.Path,
		ToneHz:     c.Indicator.ToneHz,
		SampleRate: c.Indicator.SampleRate,
	}
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Outputs:    c.Logging.Outputs,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
