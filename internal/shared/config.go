package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"review_sync/internal/domain"
)

type Config struct {
	AppEnv   string
	LogLevel string

	AndroidAppID string
	IOSAppID     string
	Locale       string
	Country      string
	Lang         string

	PlayAPIBase   string
	FeedBase      string
	StorePageBase string

	IngestURL     string
	IngestToken   string
	IngestTimeout time.Duration

	MaxReviews    int
	PageSize      int
	FeedMaxPages  int
	PageDelayMin  time.Duration
	PageDelayMax  time.Duration
	SourceRPS     float64
	SourceWorkers int
	SourceTimeout time.Duration

	DeliveryAttempts  int
	DeliveryBaseDelay time.Duration
	DeliveryJitter    time.Duration

	HTTPAddr       string
	MetricsAddr    string
	PushgatewayURL string
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	CacheTTL       time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	ms := func(k string, def int) time.Duration { return time.Duration(atoi(k, def)) * time.Millisecond }
	secs := func(k string, def int) time.Duration { return time.Duration(atoi(k, def)) * time.Second }

	appID := env("APP_ID", "")
	c := Config{
		AppEnv:            env("APP_ENV", "prod"),
		LogLevel:          env("LOG_LEVEL", "info"),
		AndroidAppID:      env("ANDROID_APP_ID", appID),
		IOSAppID:          env("IOS_APP_ID", appID),
		Locale:            env("LOCALE", "pt-BR"),
		PlayAPIBase:       env("PLAY_API_BASE_URL", "http://localhost:3000"),
		FeedBase:          env("FEED_BASE_URL", "https://itunes.apple.com"),
		StorePageBase:     env("STORE_PAGE_BASE_URL", "https://apps.apple.com"),
		IngestURL:         env("WORKER_IMPORT_URL", ""),
		IngestToken:       env("IMPORT_TOKEN", ""),
		IngestTimeout:     secs("DELIVERY_TIMEOUT_SECONDS", 120),
		MaxReviews:        atoi("MAX_REVIEWS", 160),
		PageSize:          atoi("PAGE_SIZE", 40),
		FeedMaxPages:      atoi("MAX_PAGES", 3),
		PageDelayMin:      ms("PAGE_DELAY_MIN_MS", 1500),
		PageDelayMax:      ms("PAGE_DELAY_MAX_MS", 3000),
		SourceRPS:         float64(atoi("SOURCE_RPS", 2)),
		SourceWorkers:     atoi("SOURCE_WORKERS", 3),
		SourceTimeout:     secs("SOURCE_TIMEOUT_SECONDS", 120),
		DeliveryAttempts:  atoi("DELIVERY_ATTEMPTS", 4),
		DeliveryBaseDelay: ms("DELIVERY_BASE_DELAY_MS", 1500),
		DeliveryJitter:    ms("DELIVERY_JITTER_MS", 500),
		HTTPAddr:          env("HTTP_ADDR", ":8080"),
		MetricsAddr:       env("METRICS_ADDR", ""),
		PushgatewayURL:    env("PUSHGATEWAY_URL", ""),
		MySQLDSN:          env("MYSQL_DSN", ""),
		RedisAddr:         env("REDIS_ADDR", ""),
		RedisPass:         env("REDIS_PASSWORD", ""),
		RedisDB:           atoi("REDIS_DB", 0),
		CacheTTL:          secs("CACHE_TTL_SECONDS", 900),
	}
	c.Lang, c.Country = SplitLocale(c.Locale)
	return c
}

// Validate reports every missing required key at once. Delivery settings are
// only required when the batch will actually be sent.
func (c Config) Validate(deliver bool) error {
	var missing []string
	if c.AndroidAppID == "" && c.IOSAppID == "" {
		missing = append(missing, "APP_ID (or ANDROID_APP_ID / IOS_APP_ID)")
	}
	if deliver {
		if c.IngestURL == "" {
			missing = append(missing, "WORKER_IMPORT_URL")
		}
		if c.IngestToken == "" {
			missing = append(missing, "IMPORT_TOKEN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfigMissing, strings.Join(missing, ", "))
	}
	return nil
}

// SplitLocale turns "pt-BR" into ("pt", "br"). A bare language keeps it as
// the country too, matching how the stores key their storefronts.
func SplitLocale(locale string) (lang, country string) {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return "pt", "br"
	}
	parts := strings.SplitN(locale, "-", 2)
	lang = strings.ToLower(parts[0])
	country = lang
	if len(parts) == 2 && parts[1] != "" {
		country = strings.ToLower(parts[1])
	}
	return lang, country
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
