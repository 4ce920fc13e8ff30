package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every bootstrap option for the gateway-selector process:
// where its ops listener binds, how it logs, which repository backend
// feeds the compiler, and how repository reads are cached.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the process
// entrypoint (cmd/gwselector).
type ServerConfig struct {
	Listen     ListenConfig     `koanf:"listen"`
	Logging    LoggingConfig    `koanf:"logging"`
	Repository RepositoryConfig `koanf:"repository"`
	Cache      ServerCacheConfig `koanf:"cache"`
	Compile    CompileConfig    `koanf:"compile"`
	DecisionLog DecisionLogConfig `koanf:"decisionLog"`
}

// ListenConfig instructs the ops server (healthz/metrics only) about
// bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RepositoryConfig selects and configures the gwselect.Repository
// backend. Backend "memory" expects RuleSet/Rules/Gateways to be
// supplied programmatically by the caller (used for embedding and
// tests); "file" loads FilePath with koanf and optionally watches it.
type RepositoryConfig struct {
	Backend  string         `koanf:"backend"` // "memory" | "file"
	FilePath string         `koanf:"filePath"`
	Watch    bool           `koanf:"watch"`
}

// CompileConfig controls the rule-set compiler's optional behaviors.
type CompileConfig struct {
	RuleSetID      int64 `koanf:"ruleSetId"` // 0 means "the active rule set"
	Debug          bool  `koanf:"debug"`
	CaptureCtxKeys bool  `koanf:"captureCtxKeys"`
}

// DecisionLogConfig controls how selector decisions are rendered into
// log lines. Format is an inline text/template source; when
// TemplateFile is set instead, the template is loaded from disk and
// resolved through a templates.Sandbox rooted at TemplateDir so a
// misconfigured path cannot read outside the intended directory.
// TemplateFile takes precedence over Format when both are set.
type DecisionLogConfig struct {
	Format       string   `koanf:"format"`
	TemplateDir  string   `koanf:"templateDir"`
	TemplateFile string   `koanf:"templateFile"`
	AllowEnv     bool     `koanf:"allowEnv"`
	AllowedEnv   []string `koanf:"allowedEnv"`
}

// ServerCacheConfig controls the TTL cache wrapping repository reads.
type ServerCacheConfig struct {
	Backend       string                 `koanf:"backend"` // "memory" | "redis"
	TTLSeconds    int                    `koanf:"ttlSeconds"`
	Redis         ServerRedisCacheConfig `koanf:"redis"`
}

type ServerRedisCacheConfig struct {
	Address  string               `koanf:"address"`
	Username string               `koanf:"username"`
	Password string               `koanf:"password"`
	DB       int                  `koanf:"db"`
	TLS      ServerRedisTLSConfig `koanf:"tls"`
}

type ServerRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// Validate enforces invariants that keep the process predictable
// before it starts compiling rule sets.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}

	backend := strings.ToLower(strings.TrimSpace(c.Server.Repository.Backend))
	switch backend {
	case "", "memory":
	case "file":
		if strings.TrimSpace(c.Server.Repository.FilePath) == "" {
			return errors.New("config: server.repository.filePath required for file backend")
		}
	default:
		return fmt.Errorf("config: server.repository.backend unsupported: %s", c.Server.Repository.Backend)
	}

	if c.Server.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: server.cache.ttlSeconds invalid: %d", c.Server.Cache.TTLSeconds)
	}
	cacheBackend := strings.ToLower(strings.TrimSpace(c.Server.Cache.Backend))
	switch cacheBackend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}

	if c.Server.Compile.RuleSetID < 0 {
		return fmt.Errorf("config: server.compile.ruleSetId invalid: %d", c.Server.Compile.RuleSetID)
	}

	if strings.TrimSpace(c.Server.DecisionLog.TemplateFile) != "" && strings.TrimSpace(c.Server.DecisionLog.TemplateDir) == "" {
		return errors.New("config: server.decisionLog.templateDir required when templateFile is set")
	}

	return nil
}

// DefaultConfig returns the baseline values for a local, in-memory
// deployment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8081,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Repository: RepositoryConfig{
				Backend: "memory",
			},
			Cache: ServerCacheConfig{
				Backend:    "memory",
				TTLSeconds: 300,
			},
		},
	}
}
