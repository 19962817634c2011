// Package config provides configuration loading, validation, and
// SIGHUP hot-reload for the Queen orchestrator.
//
// Configuration file: /etc/queen/config.yaml (default).
// Schema version: 1.
//
// Hot-reload:
//   - The Queen listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - Apply non-destructive changes only (security thresholds/weights,
//     consensus weights, auto-fix-max-attempts, push-channel
//     intervals, log level).
//   - Destructive changes (bus backend, storage path, push-channel
//     bind address) require a restart.
//   - If the new config is invalid, the old config remains active and
//     an error is logged. The process does NOT crash on an invalid
//     hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges are enforced (weights >= 0, thresholds in [0,100]).
//   - Invalid config on startup: the process refuses to start.
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the Queen.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this Queen instance in bus/board keys and logs.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	LLM           LLMConfig           `yaml:"llm"`
	Bus           BusConfig           `yaml:"bus"`
	Board         BoardConfig         `yaml:"board"`
	Security      SecurityConfig      `yaml:"security"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Consensus     ConsensusConfig     `yaml:"consensus"`
	Proposal      ProposalConfig      `yaml:"proposal"`
	Lifecycle     LifecycleConfig     `yaml:"lifecycle"`
	Push          PushConfig          `yaml:"push"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig selects the default LLM provider backing every worker's
// LLM slot. The provider SDK itself is out of scope (spec.md §1).
type LLMConfig struct {
	// DefaultProvider ∈ {gemini, openai, anthropic, grok}.
	DefaultProvider string `yaml:"default_provider"`

	// MaxConcurrentRequests bounds in-flight LLM calls per provider via
	// a semaphore; excess requests queue with a deadline.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// BusConfig configures the durable message bus (C1).
type BusConfig struct {
	// Backend ∈ {durable, memory}. durable uses Redis; memory is the
	// process-local fallback with identical semantics.
	Backend string `yaml:"backend"`

	// RedisAddr is the redis-compatible endpoint used when Backend == durable.
	RedisAddr string `yaml:"redis_addr"`

	// HistoryLimit bounds the audit history sorted set. Default: 10000.
	HistoryLimit int `yaml:"history_limit"`

	// QueueHighWaterMark is the per-recipient-lane queue depth above
	// which send() reports queue-full instead of blocking.
	QueueHighWaterMark int `yaml:"queue_high_water_mark"`
}

// BoardConfig configures the shared knowledge board (C2).
type BoardConfig struct {
	// DefaultTTL applied to posts that don't specify one. Default: 24h.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// SweepInterval drives the optional background GC sweep in
	// addition to lazy GC-on-query. Default: 5m.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SecurityConfig configures the four-gate security pipeline (C3).
type SecurityConfig struct {
	// GateWeights are the Gate 2 risk-score weights per pattern family.
	GateWeights GateWeights `yaml:"gate_weights"`

	// InvisibleCharWeight is added per detected invisible character.
	InvisibleCharWeight int `yaml:"invisible_char_weight"`

	// CriticalBlockThreshold / CriticalQuarantineThreshold apply to
	// critical or generates-code endpoints. Defaults: 30 / 20.
	CriticalBlockThreshold     int `yaml:"critical_block_threshold"`
	CriticalQuarantineThreshold int `yaml:"critical_quarantine_threshold"`

	// StandardBlockThreshold / StandardQuarantineThreshold apply to
	// every other endpoint. Defaults: 70 / 50.
	StandardBlockThreshold     int `yaml:"standard_block_threshold"`
	StandardQuarantineThreshold int `yaml:"standard_quarantine_threshold"`

	// PersistentBlockAfterBlocks / PersistentBlockAfterEMA gate the
	// out-of-band persistent-block rule. Defaults: 5, 85.
	PersistentBlockAfterBlocks int     `yaml:"persistent_block_after_blocks"`
	PersistentBlockAfterEMA    float64 `yaml:"persistent_block_after_ema"`

	// EMAPrevWeight / EMANewWeight sum to 1.0 and drive the cumulative
	// risk EMA: cumulative = prevWeight*prev + newWeight*new. Defaults:
	// 0.7 / 0.3, matching spec.md §4.3 exactly.
	EMAPrevWeight float64 `yaml:"ema_prev_weight"`
	EMANewWeight  float64 `yaml:"ema_new_weight"`

	// ContextIdleTTL purges idle, unblocked SecurityContexts. Default: 24h.
	ContextIdleTTL time.Duration `yaml:"context_idle_ttl"`

	// PersistContext, when true, mirrors SecurityContext updates to the
	// bus backend for cross-instance sharing. Default: false
	// (process-scoped), per spec.md §9's Open Question resolution.
	PersistContext bool `yaml:"persist_context"`

	// QuarantineCapacity bounds the quarantine ring buffer. Default: 100.
	QuarantineCapacity int `yaml:"quarantine_capacity"`

	Image ImageConfig `yaml:"image"`
}

// GateWeights are the Gate 2 per-category risk contributions, exactly
// matching original_source's prompt_protection.py (confirmed against
// spec.md §4.3: code-execution 50, context-poison 45, jailbreak 40,
// instruction-override 35, system-manipulation 30, info-extraction 30).
type GateWeights struct {
	InstructionOverride int `yaml:"instruction_override"`
	SystemManipulation  int `yaml:"system_manipulation"`
	Jailbreak           int `yaml:"jailbreak"`
	InfoExtraction      int `yaml:"info_extraction"`
	ContextPoison       int `yaml:"context_poison"`
	CodeExecution       int `yaml:"code_execution"`
}

// ImageConfig configures the image sub-gate.
type ImageConfig struct {
	// MaxBytes rejects larger images outright. Default: 100 MiB.
	MaxBytes int64 `yaml:"max_bytes"`
}

// DispatcherConfig configures task routing (C5).
type DispatcherConfig struct {
	// DefaultDeadline bounds a worker call absent task.deadline. Default: 30s.
	DefaultDeadline time.Duration `yaml:"default_deadline"`
}

// ConsensusConfig configures weighted aggregation (C6).
type ConsensusConfig struct {
	// SourceWeights maps a source name to its fixed weight. Defaults
	// match spec.md §4.6: security 0.30, treasury 0.20, maths 0.25,
	// data 0.15, pattern 0.10.
	SourceWeights map[string]float64 `yaml:"source_weights"`

	// ApproveThreshold / ReviewThreshold split the decision bands.
	// Defaults: 70 / 50.
	ApproveThreshold float64 `yaml:"approve_threshold"`
	ReviewThreshold  float64 `yaml:"review_threshold"`

	// ConfidenceMargin is the |score-threshold| cutoff for "high"
	// confidence. Default: 15.
	ConfidenceMargin float64 `yaml:"confidence_margin"`

	// ConflictPriority orders sources for tie-breaking contradictory
	// recommendations, highest priority first. Default matches
	// spec.md §4.6: security, monitoring, treasury, maths, blockchain,
	// pattern, data.
	ConflictPriority []string `yaml:"conflict_priority"`
}

// ProposalConfig configures the proposal lifecycle (C7).
type ProposalConfig struct {
	// AutoFixMaxAttempts bounds the fix loop. Range [1,10], default 5.
	AutoFixMaxAttempts int `yaml:"auto_fix_max_attempts"`

	// AllowedExtensions is the validator's path allow-list.
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// SandboxRoot is the filesystem root under which every
	// sandbox/{proposal-id}/... workspace is rooted.
	SandboxRoot string `yaml:"sandbox_root"`
}

// LifecycleConfig configures instance boot/shutdown (C8).
type LifecycleConfig struct {
	// InstanceTTL is the bus registration TTL. Default: 300s.
	InstanceTTL time.Duration `yaml:"instance_ttl"`

	// HeartbeatInterval refreshes the instance TTL. Default: 60s.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ShutdownDrainTimeout is the target graceful-shutdown budget.
	// Default: 10s.
	ShutdownDrainTimeout time.Duration `yaml:"shutdown_drain_timeout"`

	// ShutdownFallbackTimeout is the hard upper bound before the
	// process force-exits. Default: 30s.
	ShutdownFallbackTimeout time.Duration `yaml:"shutdown_fallback_timeout"`

	// SessionPersistTTL bounds persisted session records. Default: 3600s.
	SessionPersistTTL time.Duration `yaml:"session_persist_ttl"`
}

// PushConfig configures the real-time admin fan-out (C9).
type PushConfig struct {
	// MaxConnectionsPerTopic caps concurrent subscribers. Must be <=
	// 100; default 100.
	MaxConnectionsPerTopic int `yaml:"max_connections_per_topic"`

	// HeartbeatInterval is the server ping cadence. Default: 30s.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// TopicIntervals maps a topic name to its poll interval. Every
	// value must be >= 1s. Defaults: registry=5s, decisions=10s,
	// analytics=30s.
	TopicIntervals map[string]time.Duration `yaml:"topic_intervals"`

	// ListenAddr is the websocket duplex transport bind address.
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig configures local persistence shared by the Bus, Board,
// and Proposal Engine.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file backing the
	// process-local fallback and audit ledgers.
	DBPath string `yaml:"db_path"`

	// RetentionDays bounds ledger pruning. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Defaults returns a Config populated with every documented default.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		LLM: LLMConfig{
			DefaultProvider:       "anthropic",
			MaxConcurrentRequests: 8,
		},
		Bus: BusConfig{
			Backend:            "memory",
			RedisAddr:          "127.0.0.1:6379",
			HistoryLimit:       10000,
			QueueHighWaterMark: 1000,
		},
		Board: BoardConfig{
			DefaultTTL:    24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Security: SecurityConfig{
			GateWeights: GateWeights{
				InstructionOverride: 35,
				SystemManipulation:  30,
				Jailbreak:           40,
				InfoExtraction:      30,
				ContextPoison:       45,
				CodeExecution:       50,
			},
			InvisibleCharWeight:         10,
			CriticalBlockThreshold:      30,
			CriticalQuarantineThreshold: 20,
			StandardBlockThreshold:      70,
			StandardQuarantineThreshold: 50,
			PersistentBlockAfterBlocks:  5,
			PersistentBlockAfterEMA:     85,
			EMAPrevWeight:               0.7,
			EMANewWeight:                0.3,
			ContextIdleTTL:              24 * time.Hour,
			PersistContext:              false,
			QuarantineCapacity:          100,
			Image: ImageConfig{
				MaxBytes: 100 * 1024 * 1024,
			},
		},
		Dispatcher: DispatcherConfig{
			DefaultDeadline: 30 * time.Second,
		},
		Consensus: ConsensusConfig{
			SourceWeights: map[string]float64{
				"security": 0.30,
				"treasury": 0.20,
				"maths":    0.25,
				"data":     0.15,
				"pattern":  0.10,
			},
			ApproveThreshold: 70,
			ReviewThreshold:  50,
			ConfidenceMargin: 15,
			ConflictPriority: []string{
				"security", "monitoring", "treasury", "maths", "blockchain", "pattern", "data",
			},
		},
		Proposal: ProposalConfig{
			AutoFixMaxAttempts: 5,
			AllowedExtensions:  []string{".py", ".ts", ".tsx", ".js", ".jsx", ".json", ".yaml", ".yml", ".txt", ".md", ".go"},
			SandboxRoot:        "/var/lib/queen/sandbox",
		},
		Lifecycle: LifecycleConfig{
			InstanceTTL:             300 * time.Second,
			HeartbeatInterval:       60 * time.Second,
			ShutdownDrainTimeout:    10 * time.Second,
			ShutdownFallbackTimeout: 30 * time.Second,
			SessionPersistTTL:       3600 * time.Second,
		},
		Push: PushConfig{
			MaxConnectionsPerTopic: 100,
			HeartbeatInterval:      30 * time.Second,
			TopicIntervals: map[string]time.Duration{
				"registry":  5 * time.Second,
				"decisions": 10 * time.Second,
				"analytics": 30 * time.Second,
			},
			ListenAddr: "0.0.0.0:9444",
		},
		Storage: StorageConfig{
			DBPath:        "/var/lib/queen/queen.db",
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from path, merging it over
// Defaults(). Returns an error if the file cannot be read, parsed, or
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks every config field for correctness, returning a
// single error listing every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}

	switch cfg.LLM.DefaultProvider {
	case "gemini", "openai", "anthropic", "grok":
	default:
		errs = append(errs, fmt.Sprintf("llm.default_provider must be one of gemini|openai|anthropic|grok, got %q", cfg.LLM.DefaultProvider))
	}
	if cfg.LLM.MaxConcurrentRequests < 1 {
		errs = append(errs, "llm.max_concurrent_requests must be >= 1")
	}

	switch cfg.Bus.Backend {
	case "durable", "memory":
	default:
		errs = append(errs, fmt.Sprintf("bus.backend must be durable|memory, got %q", cfg.Bus.Backend))
	}
	if cfg.Bus.Backend == "durable" && cfg.Bus.RedisAddr == "" {
		errs = append(errs, "bus.redis_addr is required when bus.backend=durable")
	}
	if cfg.Bus.HistoryLimit < 1 {
		errs = append(errs, "bus.history_limit must be >= 1")
	}
	if cfg.Bus.QueueHighWaterMark < 1 {
		errs = append(errs, "bus.queue_high_water_mark must be >= 1")
	}

	if cfg.Board.DefaultTTL <= 0 {
		errs = append(errs, "board.default_ttl must be > 0")
	}

	gw := cfg.Security.GateWeights
	for name, v := range map[string]int{
		"instruction_override": gw.InstructionOverride,
		"system_manipulation":  gw.SystemManipulation,
		"jailbreak":            gw.Jailbreak,
		"info_extraction":      gw.InfoExtraction,
		"context_poison":       gw.ContextPoison,
		"code_execution":       gw.CodeExecution,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("security.gate_weights.%s must be in [0,100], got %d", name, v))
		}
	}
	if cfg.Security.EMAPrevWeight+cfg.Security.EMANewWeight != 1.0 {
		errs = append(errs, "security.ema_prev_weight + security.ema_new_weight must equal 1.0")
	}
	if cfg.Security.CriticalBlockThreshold <= cfg.Security.CriticalQuarantineThreshold {
		errs = append(errs, "security.critical_block_threshold must be greater than critical_quarantine_threshold")
	}
	if cfg.Security.StandardBlockThreshold <= cfg.Security.StandardQuarantineThreshold {
		errs = append(errs, "security.standard_block_threshold must be greater than standard_quarantine_threshold")
	}
	if cfg.Security.Image.MaxBytes <= 0 {
		errs = append(errs, "security.image.max_bytes must be > 0")
	}
	if cfg.Security.QuarantineCapacity < 1 {
		errs = append(errs, "security.quarantine_capacity must be >= 1")
	}

	if cfg.Dispatcher.DefaultDeadline <= 0 {
		errs = append(errs, "dispatcher.default_deadline must be > 0")
	}

	if cfg.Consensus.ApproveThreshold <= cfg.Consensus.ReviewThreshold {
		errs = append(errs, "consensus.approve_threshold must be greater than review_threshold")
	}
	if len(cfg.Consensus.SourceWeights) == 0 {
		errs = append(errs, "consensus.source_weights must not be empty")
	}

	if cfg.Proposal.AutoFixMaxAttempts < 1 || cfg.Proposal.AutoFixMaxAttempts > 10 {
		errs = append(errs, fmt.Sprintf("proposal.auto_fix_max_attempts must be in [1,10], got %d", cfg.Proposal.AutoFixMaxAttempts))
	}
	if cfg.Proposal.SandboxRoot == "" {
		errs = append(errs, "proposal.sandbox_root must not be empty")
	}

	if cfg.Lifecycle.ShutdownDrainTimeout <= 0 {
		errs = append(errs, "lifecycle.shutdown_drain_timeout must be > 0")
	}
	if cfg.Lifecycle.ShutdownFallbackTimeout < cfg.Lifecycle.ShutdownDrainTimeout {
		errs = append(errs, "lifecycle.shutdown_fallback_timeout must be >= shutdown_drain_timeout")
	}

	if cfg.Push.MaxConnectionsPerTopic < 1 || cfg.Push.MaxConnectionsPerTopic > 100 {
		errs = append(errs, fmt.Sprintf("push.max_connections_per_topic must be in [1,100], got %d", cfg.Push.MaxConnectionsPerTopic))
	}
	for topic, interval := range cfg.Push.TopicIntervals {
		if interval < time.Second {
			errs = append(errs, fmt.Sprintf("push.topic_intervals[%s] must be >= 1s", topic))
		}
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, "storage.retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// Reloadable reports whether newCfg can be hot-applied over oldCfg
// without a restart. Destructive fields (bus backend, storage path,
// push listen address) differing between the two configs force the
// caller to reject the reload and keep the old config active.
func Reloadable(oldCfg, newCfg *Config) (ok bool, reason string) {
	if oldCfg.Bus.Backend != newCfg.Bus.Backend {
		return false, "bus.backend change requires restart"
	}
	if oldCfg.Storage.DBPath != newCfg.Storage.DBPath {
		return false, "storage.db_path change requires restart"
	}
	if oldCfg.Push.ListenAddr != newCfg.Push.ListenAddr {
		return false, "push.listen_addr change requires restart"
	}
	return true, ""
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
