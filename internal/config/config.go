package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr     string            `json:"listen_addr"`
	DownloadDir    string            `json:"download_dir"`
	DataDir        string            `json:"data_dir"`
	WebDir         string            `json:"web_dir"`
	Headers        map[string]string `json:"headers"`
	ConnectTimeout Duration          `json:"connect_timeout"`
	MaxRedirects   int               `json:"max_redirects"`
	RateLimit      int64             `json:"rate_limit"` // bytes/sec, 0 = unlimited
	ProgressTTL    Duration          `json:"progress_ttl"`
}

// Duration lets config.json say "20s" instead of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default() Config {
	return Config{
		ListenAddr:  ":8084",
		DownloadDir: "./downloads",
		DataDir:     "./data",
		WebDir:      "./web",
		Headers: map[string]string{
			"User-Agent": "webdl/1.0",
		},
		ConnectTimeout: Duration(20 * time.Second),
		MaxRedirects:   10,
		ProgressTTL:    Duration(time.Hour),
	}
}

// Load reads the optional JSON config file, then applies environment
// overrides. A .env file is honored if present.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	_ = godotenv.Load()

	if v := os.Getenv("WEBDL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WEBDL_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("WEBDL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WEBDL_RATE_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, err
		}
		cfg.RateLimit = n
	}

	return cfg, nil
}
