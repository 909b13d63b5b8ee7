package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// ModeDevelopment enables detailed error messages and the sqlite default DSN.
	ModeDevelopment = "development"
	// ModeProduction hides error details from API callers.
	ModeProduction = "production"

	// TargetDefault is the logical store holding users and messages.
	TargetDefault = "default"
	// TargetVector is the logical store holding message embeddings and sync state.
	TargetVector = "vector"
)

// ErrInvalidEnvironment is returned when an environment name is neither development nor production.
var ErrInvalidEnvironment = errors.New("invalid environment")

// Profile is the configuration to start the server.
type Profile struct {
	// Mode is "development" or "production".
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory, used for the sqlite default DSN
	Data string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// DSN points to the message store
	DSN string
	// VectorDSN points to the embedding store. Empty means the message store is reused.
	VectorDSN string
	// Version is the current version of server
	Version string

	// Guards
	APIKey     string // TENSAI_KEY: chat endpoint key, plain text or bcrypt hash
	CronSecret string // CRON_SECRET: bearer token for the sync endpoint

	// AI Configuration
	AIEnabled              bool          // TENSAI_AI_ENABLED (default: true when OPENAI_API_KEY is set)
	AIOpenAIAPIKey         string        // TENSAI_OPENAI_API_KEY (legacy: OPENAI_API_KEY)
	AIOpenAIBaseURL        string        // TENSAI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIEmbeddingSmallModel  string        // TENSAI_EMBEDDING_SMALL_MODEL (default: text-embedding-3-small)
	AIEmbeddingLargeModel  string        // TENSAI_EMBEDDING_LARGE_MODEL (default: text-embedding-3-large)
	AIEmbeddingBatchSize   int           // TENSAI_EMBEDDING_BATCH_SIZE (default: 100)
	AIEmbeddingRetries     int           // TENSAI_EMBEDDING_RETRIES (default: 3)
	AILLMModel             string        // TENSAI_LLM_MODEL (default: gpt-4-turbo-preview)
	AILLMTemperature       float32       // TENSAI_LLM_TEMPERATURE (default: 0.7)
	AIGenerationTimeout    time.Duration // TENSAI_GENERATION_TIMEOUT (default: 10s)
	VectorTable            string        // TENSAI_VECTOR_TABLE (legacy: VECTOR_TABLE_NAME)
	RetrievalBoostKeywords []string      // TENSAI_BOOST_KEYWORDS, comma separated
	RetrievalBoost         float64       // TENSAI_BOOST (default: 0.1)
	RetrievalModel         string        // TENSAI_RETRIEVAL_MODEL, small or large (default: small)

	// Sync Configuration
	SyncEnabled   bool   // TENSAI_SYNC_ENABLED (default: true)
	SyncSchedule  string // TENSAI_SYNC_SCHEDULE (default: */5 * * * *)
	SyncBatchSize int    // TENSAI_SYNC_BATCH_SIZE (default: 100)
}

// Connection is the resolved descriptor of one logical store.
// It is computed once by Resolve and never changes afterwards.
type Connection struct {
	Target         string
	Driver         string
	DSN            string
	EmbeddingTable string
}

func (p *Profile) IsDev() bool {
	return p.Mode != ModeProduction
}

// IsAIEnabled returns true if AI is enabled and an API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIOpenAIAPIKey != ""
}

// ValidateEnvironment checks that env names a supported environment.
func ValidateEnvironment(env string) error {
	if env != ModeDevelopment && env != ModeProduction {
		return fmt.Errorf("%w: %s", ErrInvalidEnvironment, env)
	}
	return nil
}

// FromEnv loads secrets, AI and sync configuration from environment variables.
// Supports both TENSAI_* (new) and the variable names of the original deployment.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		if legacyKey == "" {
			return ""
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(newKey, legacyKey, defaultValue string) string {
		if val := getEnvWithFallback(newKey, legacyKey); val != "" {
			return val
		}
		return defaultValue
	}

	getIntEnv := func(key string, defaultValue int) int {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
			return v
		}
		return defaultValue
	}

	p.APIKey = getEnvWithFallback("TENSAI_API_KEY", "TENSAI_KEY")
	p.CronSecret = getEnvWithFallback("TENSAI_CRON_SECRET", "CRON_SECRET")

	p.AIOpenAIAPIKey = getEnvWithFallback("TENSAI_OPENAI_API_KEY", "OPENAI_API_KEY")
	p.AIEnabled = getEnvWithDefault("TENSAI_AI_ENABLED", "", strconv.FormatBool(p.AIOpenAIAPIKey != "")) == "true"
	p.AIOpenAIBaseURL = getEnvWithDefault("TENSAI_OPENAI_BASE_URL", "OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIEmbeddingSmallModel = getEnvWithDefault("TENSAI_EMBEDDING_SMALL_MODEL", "", "text-embedding-3-small")
	p.AIEmbeddingLargeModel = getEnvWithDefault("TENSAI_EMBEDDING_LARGE_MODEL", "", "text-embedding-3-large")
	p.AIEmbeddingBatchSize = getIntEnv("TENSAI_EMBEDDING_BATCH_SIZE", 100)
	p.AIEmbeddingRetries = getIntEnv("TENSAI_EMBEDDING_RETRIES", 3)
	p.AILLMModel = getEnvWithDefault("TENSAI_LLM_MODEL", "", "gpt-4-turbo-preview")
	p.AILLMTemperature = 0.7
	if v, err := strconv.ParseFloat(os.Getenv("TENSAI_LLM_TEMPERATURE"), 32); err == nil {
		p.AILLMTemperature = float32(v)
	}
	p.AIGenerationTimeout = 10 * time.Second
	if d, err := time.ParseDuration(os.Getenv("TENSAI_GENERATION_TIMEOUT")); err == nil && d > 0 {
		p.AIGenerationTimeout = d
	}
	p.VectorTable = getEnvWithFallback("TENSAI_VECTOR_TABLE", "VECTOR_TABLE_NAME")

	if keywords := os.Getenv("TENSAI_BOOST_KEYWORDS"); keywords != "" {
		p.RetrievalBoostKeywords = nil
		for _, k := range strings.Split(keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				p.RetrievalBoostKeywords = append(p.RetrievalBoostKeywords, strings.ToLower(k))
			}
		}
	}
	p.RetrievalBoost = 0.1
	if v, err := strconv.ParseFloat(os.Getenv("TENSAI_BOOST"), 64); err == nil && v >= 0 {
		p.RetrievalBoost = v
	}

	p.RetrievalModel = getEnvWithDefault("TENSAI_RETRIEVAL_MODEL", "", "small")

	p.SyncEnabled = getEnvWithDefault("TENSAI_SYNC_ENABLED", "", "true") == "true"
	p.SyncSchedule = getEnvWithDefault("TENSAI_SYNC_SCHEDULE", "", "*/5 * * * *")
	p.SyncBatchSize = getIntEnv("TENSAI_SYNC_BATCH_SIZE", 100)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate checks the profile and fills derived defaults. Every failure is a
// configuration error and must not be retried.
func (p *Profile) Validate() error {
	if err := ValidateEnvironment(p.Mode); err != nil {
		return err
	}

	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			if p.Data == "" {
				p.Data = "."
			}
			dataDir, err := checkDataDir(p.Data)
			if err != nil {
				slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
			p.Data = dataDir
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("tensai_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.AIEnabled && p.AIOpenAIAPIKey == "" {
		return errors.New("OpenAI API key is required when AI is enabled")
	}
	if p.Mode == ModeProduction && p.APIKey == "" {
		return errors.New("API key is required in production")
	}
	switch p.RetrievalModel {
	case "", "small", "large":
	default:
		return errors.Errorf("unknown retrieval model %q: only 'small' and 'large' are supported", p.RetrievalModel)
	}

	return nil
}

// Resolve returns the connection descriptor of a logical store. Environment
// specific naming is decided here and nowhere else.
func (p *Profile) Resolve(target string) (Connection, error) {
	conn := Connection{
		Target:         target,
		Driver:         p.Driver,
		EmbeddingTable: p.embeddingTable(),
	}
	switch target {
	case TargetDefault:
		conn.DSN = p.DSN
	case TargetVector:
		conn.DSN = p.VectorDSN
		if conn.DSN == "" {
			conn.DSN = p.DSN
		}
	default:
		return Connection{}, errors.Errorf("unknown store target %q", target)
	}
	return conn, nil
}

// embeddingTable returns the table name for message embeddings.
func (p *Profile) embeddingTable() string {
	name := p.VectorTable
	if name == "" {
		if p.Mode == ModeProduction {
			name = "message_embeddings_prod"
		} else {
			name = "message_embeddings_dev"
		}
	}
	return strings.TrimPrefix(name, "vector_store.")
}
