package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the trailmatch API configuration. It is built once by
// Load (defaults filled, validated) and never mutated afterwards.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Ranking   RankingConfig   `yaml:"ranking"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CatalogConfig holds trail catalog source settings.
type CatalogConfig struct {
	BaseURL           string `yaml:"base_url"`
	FilterPublished   bool   `yaml:"filter_published"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	Retries           int    `yaml:"retries"`
	BackoffBaseMS     int    `yaml:"backoff_base_ms"`
	MaxPages          int    `yaml:"max_pages"`
}

// EmbeddingConfig holds embedding provider settings. Instruction
// prefixes are for models that want asymmetric inputs (e5-style
// "query: " / "passage: "); empty means no prefix.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // label for logs/metrics
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	CacheTTLSec         int    `yaml:"cache_ttl_sec"` // 0 = no expiry on cached embeddings
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Backend         string      `yaml:"backend"` // memory, redis (default: memory)
	Name            string      `yaml:"name"`
	TopK            int         `yaml:"top_k"`
	Redis           RedisConfig `yaml:"redis"`
	HNSWM           int         `yaml:"hnsw_m"`
	HNSWEFConstruct int         `yaml:"hnsw_ef_construction"`
}

// RedisConfig holds Redis connection settings for the optional FT backend.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// QueryConfig holds query construction settings. Snapshot hints and
// synonym expansion are on by default; the disable flags opt out.
type QueryConfig struct {
	DisableSnapshotHints bool                `yaml:"disable_snapshot_hints"`
	SnapshotMaxHints     int                 `yaml:"snapshot_max_hints"`
	HintPaths            []string            `yaml:"hint_paths"`
	DisableSynonyms      bool                `yaml:"disable_synonyms"`
	MaxSynonyms          int                 `yaml:"max_synonyms"`
	Synonyms             map[string][]string `yaml:"synonyms"`
	MaxLength            int                 `yaml:"max_length"` // 0 = no truncation
}

// FusionConfig holds hybrid score fusion settings.
type FusionConfig struct {
	UseHybrid      bool    `yaml:"use_hybrid"`
	SinglePath     string  `yaml:"single_path"`    // semantic, lexical — active path when hybrid is off
	Normalization  string  `yaml:"normalization"`  // minmax, zscore
	RankFusion     bool    `yaml:"rank_fusion"`    // reciprocal-rank fusion instead of weighted blend
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	RRFK           int     `yaml:"rrf_k"`
}

// RankingConfig holds business ranking settings.
type RankingConfig struct {
	MatchThresholdTrails float64  `yaml:"match_threshold_trilhas"`
	MatchThresholdJobs   float64  `yaml:"match_threshold_vagas"`
	MaxSuggestions       int      `yaml:"max_suggestions"`
	TagBoost             float64  `yaml:"tag_boost"`
	BeginnerBoost        float64  `yaml:"beginner_boost"`
	TitleDescBoost       float64  `yaml:"title_desc_boost"`
	ScoreCap             float64  `yaml:"score_cap"`
	DominanceMinAccept   float64  `yaml:"dominance_min_accept"`
	AllowedStatuses      []string `yaml:"allowed_statuses"`
}

// MaxSuggestionsHardCap bounds max_suggestions regardless of configuration.
const MaxSuggestionsHardCap = 3

// Load reads configuration from a YAML file by environment name (local, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// Default builds a Config with every default applied and no file read.
// Used by tests and by callers embedding the engine as a library.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Catalog.ConnectTimeoutSec <= 0 {
		c.Catalog.ConnectTimeoutSec = 3
	}
	if c.Catalog.RequestTimeoutSec <= 0 {
		c.Catalog.RequestTimeoutSec = 10
	}
	if c.Catalog.Retries < 0 {
		c.Catalog.Retries = 0
	} else if c.Catalog.Retries == 0 {
		c.Catalog.Retries = 2
	}
	if c.Catalog.BackoffBaseMS <= 0 {
		c.Catalog.BackoffBaseMS = 400
	}
	if c.Catalog.MaxPages <= 0 {
		c.Catalog.MaxPages = 10
	}

	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}

	if c.Index.Backend == "" {
		c.Index.Backend = "memory"
	}
	if c.Index.Name == "" {
		c.Index.Name = "trilhas_v1"
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 50
	}
	if c.Index.Redis.KeyPrefix == "" {
		c.Index.Redis.KeyPrefix = "trailmatch:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}

	if c.Query.SnapshotMaxHints <= 0 {
		c.Query.SnapshotMaxHints = 3
	}
	if c.Query.MaxSynonyms <= 0 {
		c.Query.MaxSynonyms = 6
	}
	if len(c.Query.HintPaths) == 0 {
		c.Query.HintPaths = DefaultHintPaths()
	}
	if c.Query.Synonyms == nil {
		c.Query.Synonyms = DefaultSynonyms()
	}

	if c.Fusion.SinglePath == "" {
		c.Fusion.SinglePath = "semantic"
	}
	if c.Fusion.Normalization == "" {
		c.Fusion.Normalization = "minmax"
	}
	if c.Fusion.SemanticWeight == 0 && c.Fusion.LexicalWeight == 0 {
		c.Fusion.SemanticWeight = 0.65
		c.Fusion.LexicalWeight = 0.35
	}
	if c.Fusion.RRFK <= 0 {
		c.Fusion.RRFK = 60
	}

	if c.Ranking.MatchThresholdTrails == 0 {
		c.Ranking.MatchThresholdTrails = 0.72
	}
	if c.Ranking.MatchThresholdJobs == 0 {
		c.Ranking.MatchThresholdJobs = 0.78
	}
	if c.Ranking.MaxSuggestions <= 0 {
		c.Ranking.MaxSuggestions = MaxSuggestionsHardCap
	}
	if c.Ranking.MaxSuggestions > MaxSuggestionsHardCap {
		c.Ranking.MaxSuggestions = MaxSuggestionsHardCap
	}
	if c.Ranking.TagBoost == 0 {
		c.Ranking.TagBoost = 0.10
	}
	if c.Ranking.BeginnerBoost == 0 {
		c.Ranking.BeginnerBoost = 0.05
	}
	if c.Ranking.TitleDescBoost == 0 {
		c.Ranking.TitleDescBoost = 0.15
	}
	if c.Ranking.ScoreCap == 0 {
		c.Ranking.ScoreCap = 0.99
	}
	if c.Ranking.DominanceMinAccept == 0 {
		c.Ranking.DominanceMinAccept = 0.60
	}
	if len(c.Ranking.AllowedStatuses) == 0 {
		c.Ranking.AllowedStatuses = []string{"Published"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Index.Backend {
	case "memory":
	case "redis":
		if len(c.Index.Redis.Addrs) == 0 {
			return fmt.Errorf("index.redis.addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("index.backend must be \"memory\" or \"redis\", got %q", c.Index.Backend)
	}

	switch c.Fusion.Normalization {
	case "minmax", "zscore":
	default:
		return fmt.Errorf("fusion.normalization must be \"minmax\" or \"zscore\", got %q", c.Fusion.Normalization)
	}
	switch c.Fusion.SinglePath {
	case "semantic", "lexical":
	default:
		return fmt.Errorf("fusion.single_path must be \"semantic\" or \"lexical\", got %q", c.Fusion.SinglePath)
	}
	if c.Fusion.SemanticWeight < 0 || c.Fusion.LexicalWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.Fusion.SemanticWeight+c.Fusion.LexicalWeight <= 0 {
		return fmt.Errorf("fusion weights must not both be zero")
	}

	for name, v := range map[string]float64{
		"ranking.match_threshold_trilhas": c.Ranking.MatchThresholdTrails,
		"ranking.match_threshold_vagas":   c.Ranking.MatchThresholdJobs,
		"ranking.score_cap":               c.Ranking.ScoreCap,
		"ranking.dominance_min_accept":    c.Ranking.DominanceMinAccept,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Ranking.ScoreCap >= 1.0 {
		return fmt.Errorf("ranking.score_cap must be below 1.0, got %v", c.Ranking.ScoreCap)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	return nil
}

// DefaultHintPaths returns the snapshot sections mined for query hints,
// in priority order: goals, difficulties/barriers, learning preferences,
// key traits, interests, aspirations, location/context.
func DefaultHintPaths() []string {
	return []string{
		"objetivos_carreira.objetivo_principal",
		"objetivos_detectados",
		"dificuldades_detectadas",
		"barreiras_desafios.*",
		"preferencias_aprendizado.*",
		"caracteristicas_chave",
		"interesses",
		"tracos_personalidade",
		"aspiracoes",
		"macroperfil",
		"localizacao.contexto",
	}
}

// DefaultSynonyms returns the static query-expansion table. Keys are
// folded (lowercase, accent-stripped); values keep their display form.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"programacao": {"programar", "programador", "coding", "coder", "desenvolver", "dev"},
		"logica":      {"algoritmo", "algoritmos", "raciocinio"},
		"javascript":  {"js", "java script"},
		"iniciante":   {"beginner", "basico", "do zero"},
		"automatizar": {"automacao", "script", "scripts", "macro", "automatizado"},
		"trabalho":    {"empresa", "servico", "expediente"},
		"dados":       {"data", "csv", "planilha", "planilhas", "analise"},
		"excel":       {"planilha", "planilhas", "spreadsheet", "xls", "xlsx"},
		"python":      {"py", "pythonico", "pythonista"},
		"ia":          {"inteligencia artificial"},
		"ux":          {"user experience", "user experience design", "ux design"},
		"ui":          {"user interface", "user interface design", "ui design"},
		"direito":     {"juridico", "juridica"},
		"saude":       {"saude mental", "bem-estar"},
		"nutricao":    {"alimentacao"},
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
