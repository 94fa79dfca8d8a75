package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dyike/tradeflow/consts"
)

var ErrInvalid = errors.New("invalid config")

// Redacted stands in for a set secret wherever a config is shown.
const Redacted = "***"

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`

	LLMProvider          string `json:"llm_provider"`
	DeepThinkLLM         string `json:"deep_think_llm"`
	QuickThinkLLM        string `json:"quick_think_llm"`
	BackendURL           string `json:"backend_url"`
	LLMAPIKey            string `json:"llm_api_key"`
	LLMMaxTokens         int    `json:"llm_max_tokens"`
	LLMMaxRetries        int    `json:"llm_max_retries"`
	LLMRetryBaseDelayMs  int    `json:"llm_retry_base_delay_ms"`
	MaxDebateRounds      int    `json:"max_debate_rounds"`
	MaxRiskDiscussRounds int    `json:"max_risk_rounds"`
	MaxToolIterations    int    `json:"max_tool_iterations"`
	OnlineTools          bool   `json:"online_tools"`
	Debug                bool   `json:"debug"`
	LogLevel             string `json:"log_level"`
	LogFormat            string `json:"log_format"`
	RedditUserAgent      string `json:"reddit_user_agent"`

	SelectedAnalysts []string `json:"selected_analysts"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	CacheEnabled bool `json:"cache_enabled"`

	MemoryDBPath string `json:"memory_db_path"`
	RunsDBPath   string `json:"runs_db_path"`
	ServerAddr   string `json:"server_addr"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// Market/Social data API keys
	FinnhubAPIKey string `json:"finnhub_api_key"`
}

// RunConfig is the per-run slice of the configuration the pipeline reads.
type RunConfig struct {
	SelectedAnalysts     []string `json:"selected_analysts"`
	MaxDebateRounds      int      `json:"max_debate_rounds"`
	MaxRiskDiscussRounds int      `json:"max_risk_rounds"`
	MaxToolIterations    int      `json:"max_tool_iterations"`
	OnlineTools          bool     `json:"online_tools"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot returns defaults rooted at dir without reading the
// environment.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir:   dir,
		ResultsDir:   filepath.Join(dir, "results"),
		DataDir:      filepath.Join(dir, "data"),
		DataCacheDir: filepath.Join(dir, "data", "cache"),

		LLMProvider:         "deepseek",
		DeepThinkLLM:        "deepseek-reasoner",
		QuickThinkLLM:       "deepseek-chat",
		BackendURL:          "https://api.deepseek.com/v1",
		LLMMaxTokens:        8192,
		LLMMaxRetries:       3,
		LLMRetryBaseDelayMs: 500,

		MaxDebateRounds:      1,
		MaxRiskDiscussRounds: 1,
		MaxToolIterations:    20,
		SelectedAnalysts:     append([]string(nil), consts.AllAnalysts...),
		OnlineTools:          true,
		Debug:                false,
		LogLevel:             "info",
		LogFormat:            "text",
		RedditUserAgent:      "tradeflow/1.0",

		// Eino Debug defaults
		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		CacheEnabled: true,

		MemoryDBPath: filepath.Join(dir, "data", "memory.db"),
		RunsDBPath:   filepath.Join(dir, "data", "runs.db"),
		ServerAddr:   "127.0.0.1:8765",
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("DEEP_THINK_LLM"); val != "" {
		c.DeepThinkLLM = val
	}
	if val := os.Getenv("QUICK_THINK_LLM"); val != "" {
		c.QuickThinkLLM = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("LLM_API_KEY"); val != "" {
		c.LLMAPIKey = val
	} else if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.LLMAPIKey = val
	} else if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.LLMAPIKey = val
	}
	if val := os.Getenv("LLM_MAX_RETRIES"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LLMMaxRetries = v
		}
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}

	if val := os.Getenv("ONLINE_TOOLS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.OnlineTools = enabled
		}
	}

	if val := os.Getenv("MAX_DEBATE_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxDebateRounds = v
		}
	}
	if val := os.Getenv("MAX_RISK_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRiskDiscussRounds = v
		}
	}
	if val := os.Getenv("MAX_TOOL_ITERATIONS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxToolIterations = v
		}
	}
	if val := os.Getenv("SELECTED_ANALYSTS"); val != "" {
		c.SelectedAnalysts = SplitList(val)
	}

	if val := os.Getenv("TRADEFLOW_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	if val := os.Getenv("MEMORY_DB_PATH"); val != "" {
		c.MemoryDBPath = val
	}
	if val := os.Getenv("RUNS_DB_PATH"); val != "" {
		c.RunsDBPath = val
	}
	if val := os.Getenv("SERVER_ADDR"); val != "" {
		c.ServerAddr = val
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
	if val := os.Getenv("FINNHUB_API_KEY"); val != "" {
		c.FinnhubAPIKey = val
	}
	if val := os.Getenv("REDDIT_USER_AGENT"); val != "" {
		c.RedditUserAgent = val
	}
}

// Validate checks the values a run cannot start without.
func (c Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case "openai", "deepseek":
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", ErrInvalid, c.LLMProvider)
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("%w: llm_max_retries must be >= 0", ErrInvalid)
	}
	return c.RunConfig().Validate()
}

// RunConfig extracts the pipeline settings.
func (c Config) RunConfig() RunConfig {
	return RunConfig{
		SelectedAnalysts:     append([]string(nil), c.SelectedAnalysts...),
		MaxDebateRounds:      c.MaxDebateRounds,
		MaxRiskDiscussRounds: c.MaxRiskDiscussRounds,
		MaxToolIterations:    c.MaxToolIterations,
		OnlineTools:          c.OnlineTools,
	}
}

// RetryBaseDelay is the first backoff interval for model calls.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.LLMRetryBaseDelayMs) * time.Millisecond
}

func (rc RunConfig) Validate() error {
	if len(rc.SelectedAnalysts) == 0 {
		return fmt.Errorf("%w: at least one analyst must be selected", ErrInvalid)
	}
	seen := make(map[string]bool, len(rc.SelectedAnalysts))
	for _, a := range rc.SelectedAnalysts {
		if _, ok := consts.AnalystNodes[a]; !ok {
			return fmt.Errorf("%w: unknown analyst %q", ErrInvalid, a)
		}
		if seen[a] {
			return fmt.Errorf("%w: analyst %q selected twice", ErrInvalid, a)
		}
		seen[a] = true
	}
	if rc.MaxDebateRounds < 0 {
		return fmt.Errorf("%w: max_debate_rounds must be >= 0", ErrInvalid)
	}
	if rc.MaxRiskDiscussRounds < 0 {
		return fmt.Errorf("%w: max_risk_rounds must be >= 0", ErrInvalid)
	}
	if rc.MaxToolIterations <= 0 {
		return fmt.Errorf("%w: max_tool_iterations must be > 0", ErrInvalid)
	}
	return nil
}

func (c Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) secrets() []*string {
	return []*string{&c.LLMAPIKey, &c.FinnhubAPIKey, &c.LongportAppSecret, &c.LongportAccessToken}
}

// Redact returns a copy with every set secret replaced by Redacted.
func (c Config) Redact() Config {
	for _, s := range c.secrets() {
		if *s != "" {
			*s = Redacted
		}
	}
	return c
}

// keepSecrets restores secrets from prev that next leaves empty or redacted.
func (c *Config) keepSecrets(prev Config) {
	old := prev.secrets()
	for i, s := range c.secrets() {
		if *s == "" || *s == Redacted {
			*s = *old[i]
		}
	}
}

// SplitList parses a comma separated list, dropping blanks.
func SplitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(strings.ToLower(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
