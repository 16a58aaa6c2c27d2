package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

const (
	DefaultMaxConcurrentDownloads = 5
	DefaultReachTimeout           = 8 * time.Second
	MaxReachTimeout               = 10 * time.Second
	DefaultChallengeWaitWindow    = 8 * time.Second
	DefaultHumanPacingWindow      = 2 * time.Second
	DefaultMaxDetailLinks         = 3
	DefaultFetchRetries           = 3
	DefaultFetchAttemptTimeout    = 30 * time.Minute
	DefaultFetchFragmentTimeout   = 30 * time.Second
	DefaultFetchMaxHeight         = 1080
	DefaultMinFileSize            = 50 * 1024 * 1024
	DefaultSelectCount            = 3
	DefaultHealthySeeds           = 5
	DefaultAPIListenAddr          = "127.0.0.1:8089"
	DefaultLogMaxSizeMB           = 50
	DefaultLogMaxBackups          = 3

	TaskStoreMemory = "memory"
	TaskStoreSQLite = "sqlite"
)

type Config struct {
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	OutputDir   string
	SourcesFile string
	BotToken    string

	TaskStore  string
	TaskDBPath string

	APIListenAddr string
	APIKey        string

	DownloadSettings  DownloadConfig
	ExtractSettings   ExtractConfig
	FetchSettings     FetchConfig
	SelectionSettings SelectionConfig

	Sources  []SourceConfig
	Indexers []IndexerConfig
}

type DownloadConfig struct {
	MaxConcurrentDownloads int
}

type ExtractConfig struct {
	ReachTimeout        time.Duration
	ReachAcceptBotWall  bool
	ChallengeWaitWindow time.Duration
	HumanPacingWindow   time.Duration
	MaxDetailLinks      int
	BrowserPath         string
}

type FetchConfig struct {
	Retries         int
	AttemptTimeout  time.Duration
	FragmentTimeout time.Duration
	MaxHeight       int
	MinFileSize     int64
	InsecureTLS     bool
	YTDLPPath       string
}

type SelectionConfig struct {
	Count         int
	Max1080p      int
	Max720p       int
	MinSeeds1080p int
	MinSeeds720p  int
	MinSeedsOther int
	HealthySeeds  int
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// loadEnvFile populates unset variables from ENV_FILE, or from ./.env when
// present. Variables already in the environment win.
func loadEnvFile() error {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return godotenv.Load(path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func NewConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, utils.WrapError(err, "failed to load env file", nil)
	}

	config := &Config{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", DefaultLogMaxSizeMB),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", DefaultLogMaxBackups),
		OutputDir:     getEnv("OUTPUT_DIR", ""),
		SourcesFile:   getEnv("SOURCES_FILE", ""),
		BotToken:      getEnv("BOT_TOKEN", ""),
		TaskStore:     getEnv("TASK_STORE", TaskStoreMemory),
		TaskDBPath:    getEnv("TASK_DB_PATH", ""),
		APIListenAddr: getEnv("API_LISTEN_ADDR", DefaultAPIListenAddr),
		APIKey:        getEnv("API_KEY", ""),

		DownloadSettings: DownloadConfig{
			MaxConcurrentDownloads: getEnvInt("MAX_CONCURRENT_DOWNLOADS", DefaultMaxConcurrentDownloads),
		},

		ExtractSettings: ExtractConfig{
			ReachTimeout:        getEnvDuration("REACH_TIMEOUT", DefaultReachTimeout),
			ReachAcceptBotWall:  getEnvBool("REACH_ACCEPT_BOT_WALL", true),
			ChallengeWaitWindow: getEnvDuration("CHALLENGE_WAIT_WINDOW", DefaultChallengeWaitWindow),
			HumanPacingWindow:   getEnvDuration("HUMAN_PACING_WINDOW", DefaultHumanPacingWindow),
			MaxDetailLinks:      getEnvInt("MAX_DETAIL_LINKS", DefaultMaxDetailLinks),
			BrowserPath:         getEnv("BROWSER_PATH", ""),
		},

		FetchSettings: FetchConfig{
			Retries:         getEnvInt("FETCH_RETRIES", DefaultFetchRetries),
			AttemptTimeout:  getEnvDuration("FETCH_ATTEMPT_TIMEOUT", DefaultFetchAttemptTimeout),
			FragmentTimeout: getEnvDuration("FETCH_FRAGMENT_TIMEOUT", DefaultFetchFragmentTimeout),
			MaxHeight:       getEnvInt("FETCH_MAX_HEIGHT", DefaultFetchMaxHeight),
			MinFileSize:     getEnvInt64("FETCH_MIN_FILE_SIZE", DefaultMinFileSize),
			InsecureTLS:     getEnvBool("FETCH_INSECURE_TLS", false),
			YTDLPPath:       getEnv("YTDLP_PATH", ""),
		},

		SelectionSettings: SelectionConfig{
			Count:         getEnvInt("SELECT_COUNT", DefaultSelectCount),
			Max1080p:      getEnvInt("SELECT_MAX_1080P", 1),
			Max720p:       getEnvInt("SELECT_MAX_720P", 2),
			MinSeeds1080p: getEnvInt("SELECT_MIN_SEEDS_1080P", 3),
			MinSeeds720p:  getEnvInt("SELECT_MIN_SEEDS_720P", 2),
			MinSeedsOther: getEnvInt("SELECT_MIN_SEEDS_OTHER", 1),
			HealthySeeds:  getEnvInt("TORRENT_HEALTHY_SEEDS", DefaultHealthySeeds),
		},
	}

	if config.TaskDBPath == "" && config.OutputDir != "" {
		config.TaskDBPath = filepath.Join(config.OutputDir, "tasks.db")
	}

	if config.ExtractSettings.ReachTimeout > MaxReachTimeout {
		log.Printf("REACH_TIMEOUT %s exceeds %s, clamping", config.ExtractSettings.ReachTimeout, MaxReachTimeout)
		config.ExtractSettings.ReachTimeout = MaxReachTimeout
	}

	if config.SourcesFile != "" {
		sources, err := LoadSources(config.SourcesFile)
		if err != nil {
			return nil, utils.WrapError(err, "failed to load sources file", map[string]any{
				"path": config.SourcesFile,
			})
		}
		config.Sources = sources.Sources
		config.Indexers = sources.Indexers
	}

	if err := config.validate(); err != nil {
		log.Printf("Configuration validation failed: %v", err)
		return nil, utils.WrapError(err, "configuration validation failed", nil)
	}

	log.Println("Configuration loaded successfully")
	return config, nil
}

func (c *Config) GetDownloadSettings() DownloadConfig {
	return c.DownloadSettings
}

func (c *Config) GetExtractSettings() ExtractConfig {
	return c.ExtractSettings
}

func (c *Config) GetFetchSettings() FetchConfig {
	return c.FetchSettings
}

func (c *Config) GetSelectionSettings() SelectionConfig {
	return c.SelectionSettings
}
