package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/board"
	"github.com/omakh-hive/queen/internal/bus"
	"github.com/omakh-hive/queen/internal/config"
	"github.com/omakh-hive/queen/internal/consensus"
	"github.com/omakh-hive/queen/internal/dispatcher"
	"github.com/omakh-hive/queen/internal/lifecycle"
	"github.com/omakh-hive/queen/internal/logging"
	"github.com/omakh-hive/queen/internal/metrics"
	"github.com/omakh-hive/queen/internal/proposal"
	"github.com/omakh-hive/queen/internal/push"
	"github.com/omakh-hive/queen/internal/registry"
	"github.com/omakh-hive/queen/internal/security"
	"github.com/omakh-hive/queen/internal/storage"
	"github.com/omakh-hive/queen/internal/supervisor"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the Queen orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return run(path)
		},
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("FATAL: config load failed: %w", err)
	}

	log, err := logging.New(cfg.Observability.LogFormat, cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("FATAL: logger init failed: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("queen starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("FATAL: storage open failed: %w", err)
	}
	defer db.Close() //nolint:errcheck
	log.Info("storage opened", zap.String("path", cfg.Storage.DBPath))

	b := bus.New(&cfg.Bus, m, log)
	knowledgeBoard := board.New(cfg.Board.DefaultTTL, m, log)
	secPipeline := security.New(&cfg.Security, m, log, nil)

	reg := registry.New(m, log)
	// Workers register themselves out-of-process via the Bus; the
	// in-process Registry here only needs its wiring pass.
	reg.Initialize()
	disp := dispatcher.New(reg, cfg.Dispatcher.DefaultDeadline)

	consensusEngine := consensus.New(&cfg.Consensus, consensus.DefaultSubScorer)

	ledger, err := proposal.NewLedger(db)
	if err != nil {
		return fmt.Errorf("FATAL: proposal ledger open failed: %w", err)
	}
	validator := proposal.NewValidator(cfg.Proposal.AllowedExtensions, nil)
	// generator and runner are LLM-backed / sandbox-exec-backed and are
	// wired in by a deployment's own provider glue; nil here degrades
	// Draft/Advance to validation-only, per proposal.New's documented
	// contract.
	proposalEngine := proposal.New(validator, nil, cfg.Proposal.AutoFixMaxAttempts,
		cfg.Proposal.SandboxRoot, ledger, nil, m, log)

	lifecycleMgr := lifecycle.New(b, lifecycle.Config{
		InstanceTTL:             cfg.Lifecycle.InstanceTTL,
		HeartbeatInterval:       cfg.Lifecycle.HeartbeatInterval,
		ShutdownDrainTimeout:    cfg.Lifecycle.ShutdownDrainTimeout,
		ShutdownFallbackTimeout: cfg.Lifecycle.ShutdownFallbackTimeout,
		SessionPersistTTL:       cfg.Lifecycle.SessionPersistTTL,
	}, m, log)

	pushHub := push.NewHub(cfg.Push.MaxConnectionsPerTopic, m, log)
	decisions, err := supervisor.NewDecisionLog(db)
	if err != nil {
		return fmt.Errorf("FATAL: decision log open failed: %w", err)
	}

	sup := supervisor.New(supervisor.Components{
		Bus:        b,
		Board:      knowledgeBoard,
		Security:   secPipeline,
		Registry:   reg,
		Dispatcher: disp,
		Consensus:  consensusEngine,
		Proposals:  proposalEngine,
		Lifecycle:  lifecycleMgr,
		PushHub:    pushHub,
		Decisions:  decisions,
		Metrics:    m,
		Log:        log,
	})

	if err := sup.Boot(ctx); err != nil {
		return fmt.Errorf("FATAL: boot failed: %w", err)
	}
	log.Info("instance booted", zap.String("instance_id", lifecycleMgr.Instance().ID))

	pushSources := map[push.Topic]push.Source{
		push.TopicRegistry: func() (any, error) { return sup.Registry().Stats(), nil },
		push.TopicDecisions: func() (any, error) {
			history, err := decisions.History()
			if err != nil {
				return nil, err
			}
			return history, nil
		},
		push.TopicAnalytics: func() (any, error) { return sup.Board().Stats(), nil },
	}
	pushServer := push.NewServer(pushHub, pushSources, cfg.Push.TopicIntervals, cfg.Push.HeartbeatInterval, m, log)
	go func() {
		if err := pushServer.Run(ctx, cfg.Push.ListenAddr); err != nil {
			log.Error("push channel server error", zap.Error(err))
		}
	}()
	log.Info("push channel started", zap.String("addr", cfg.Push.ListenAddr))

	go func() {
		if err := m.Serve(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			if ok, reason := config.Reloadable(cfg, newCfg); !ok {
				log.Error("config hot-reload rejected — destructive change requires restart",
					zap.String("reason", reason))
				continue
			}
			cfg = newCfg
			log.Info("config hot-reload successful")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Lifecycle.ShutdownFallbackTimeout)
	defer shutdownCancel()

	unhealthy := false
	report := sup.Shutdown(shutdownCtx, func() { unhealthy = true }, log.Sync)
	log.Info("queen shutdown complete",
		zap.Duration("duration", report.Duration),
		zap.Bool("hit_drain_timeout", report.HitDrainTimeout),
		zap.Bool("hit_fallback", report.HitFallback),
		zap.Bool("marked_unhealthy", unhealthy),
	)

	return nil
}
