package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/mwaldron/aura/internal/budget"
	"github.com/mwaldron/aura/internal/care"
	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/codelets"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/consolidate"
	"github.com/mwaldron/aura/internal/cycle"
	"github.com/mwaldron/aura/internal/evolve"
	"github.com/mwaldron/aura/internal/express"
	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/pattern"
	"github.com/mwaldron/aura/internal/plan"
	"github.com/mwaldron/aura/internal/reward"
	"github.com/mwaldron/aura/internal/salience"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/thought"
	"github.com/mwaldron/aura/internal/tool"
)

func main() {
	configPath := flag.String("config", "aura.yaml", "path to configuration file")
	flag.Parse()

	// Load .env for secrets (channel tokens); missing file is fine
	if err := godotenv.Load(); err == nil {
		log.Println("[main] Loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		log.Fatalf("[main] timezone: %v", err)
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("[main] store: %v", err)
	}
	defer st.Close()

	embedder := llm.NewEmbeddingClient(cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel,
		time.Duration(cfg.LLM.EmbedTimeoutMS)*time.Millisecond)
	deliberator := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model)

	scorer := salience.NewScorer(cfg.Salience.Weights,
		time.Duration(cfg.Salience.LookbackMinutes)*time.Minute, embedder)

	engine := thought.NewEngine(st, deliberator, clk,
		cfg.Thought.S2MaxCallsPerTick, cfg.Thought.S2LatencyMS, cfg.Thought.DecayHours)

	policy := care.NewPolicy(&cfg.Care, st)
	critic := express.NewCritic(st, deliberator)

	table, err := express.LoadChannelPolicy(cfg.Express.PolicyPath)
	if err != nil {
		log.Fatalf("[main] channel policy: %v", err)
	}
	router := express.NewRouter(st, critic, policy, table, clk, &cfg.Express)

	// Messenger channel: enabled only when the gateway credentials exist
	var session *discordgo.Session
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		channelID := os.Getenv("DISCORD_CHANNEL_ID")
		if channelID == "" {
			log.Fatalf("[main] DISCORD_TOKEN set but DISCORD_CHANNEL_ID missing")
		}
		session, err = discordgo.New("Bot " + token)
		if err != nil {
			log.Fatalf("[main] discord: %v", err)
		}
		if err := session.Open(); err != nil {
			log.Printf("[main] discord gateway unavailable, messenger sends will fail soft: %v", err)
		} else {
			defer session.Close()
		}
		router.RegisterChannel(express.NewDiscordChannel(func() *discordgo.Session { return session }, channelID))
		log.Println("[main] messenger channel registered")
	}

	registry := codelets.NewRegistry()
	registry.Register(codelets.NewTemporalCodelet())
	registry.Register(codelets.NewCalendarCodelet())
	registry.Register(codelets.NewEmotionalCodelet())
	registry.Register(codelets.NewGoalCodelet())
	registry.Register(codelets.NewSocialCodelet())
	registry.Register(codelets.NewAnniversaryCodelet())
	registry.Register(codelets.NewPatternWatchCodelet())

	tools := tool.NewRegistry(st, clk)
	if err := tool.RegisterBuiltins(tools, st, clk); err != nil {
		log.Fatalf("[main] tools: %v", err)
	}
	dispatcher := plan.NewDispatcher(tools, st, clk)
	executor := plan.NewExecutor(st, clk, dispatcher, cfg.Planner.MaxRetries,
		time.Duration(cfg.Planner.StepTimeoutMS)*time.Millisecond)

	patterns := pattern.NewEngine(st, clk)
	rewards := reward.NewAggregator(st, clk, cfg.Reward.Weights)
	tuner := evolve.NewTuner(st, clk, scorer, engine, router, cfg.Evolution.MaxStep)
	consolidator := consolidate.NewConsolidator(st, embedder, deliberator, clk,
		cfg.Consolidation.LookbackHours, cfg.Consolidation.MinClusterSize,
		cfg.Consolidation.SimilarityThreshold)

	var load *budget.LoadWatcher
	if lw, err := budget.NewLoadWatcher(); err == nil {
		load = lw
		load.Start()
		defer load.Stop()
	} else {
		log.Printf("[main] load watcher unavailable: %v", err)
	}

	driver, err := cycle.New(cfg, cycle.Deps{
		Store:        st,
		Clock:        clk,
		Registry:     registry,
		Scorer:       scorer,
		Engine:       engine,
		Router:       router,
		Patterns:     patterns,
		Rewards:      rewards,
		Tuner:        tuner,
		Consolidator: consolidator,
		Executor:     executor,
		Load:         load,
	})
	if err != nil {
		log.Fatalf("[main] driver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGHUP reloads configuration between cycles; SIGINT/SIGTERM stop
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				fresh, err := config.Load(*configPath)
				if err != nil {
					log.Printf("[main] reload failed, keeping current config: %v", err)
					continue
				}
				driver.Reload(fresh)
			default:
				log.Printf("[main] received %s, shutting down", sig)
				cancel()
				return
			}
		}
	}()

	if err := driver.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("[main] driver exited: %v", err)
	}
}
