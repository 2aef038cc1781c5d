// Command reveried runs the memory lifecycle daemon: a bounded memory
// store with background dream cycles and a continuously evolving
// emotional state, served over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/reverie/config"
	"github.com/becomeliminal/reverie/dream"
	"github.com/becomeliminal/reverie/emotion"
	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
	"github.com/becomeliminal/reverie/memory/embedder/cache"
	"github.com/becomeliminal/reverie/memory/index/chromem"
	"github.com/becomeliminal/reverie/server"
)

func main() {
	configPath := flag.String("config", "reverie.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var storeOpts []memory.Option
	if cfg.Embedding.Enabled {
		embedder, err := newEmbedder(cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatalf("Failed to create embedder: %v", err)
		}
		cached, err := cache.New(embedder, cfg.Embedding.CacheSize)
		if err != nil {
			log.Fatalf("Failed to create embedding cache: %v", err)
		}
		defer cached.Close()
		index, err := chromem.New(cached)
		if err != nil {
			log.Fatalf("Failed to create similarity index: %v", err)
		}
		storeOpts = append(storeOpts, memory.WithSimilarityIndex(index))
	}
	store := memory.New(storeOpts...)

	var gen genai.Generator
	if cfg.AnthropicKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicKey))
		gen = genai.NewAnthropic(&client, cfg.Model)
		log.Printf("Using Claude generator")
	} else {
		gen = genai.NewStatic()
		log.Printf("No API key configured, using static generator")
	}

	dreamCfg := dream.DefaultConfig()
	dreamCfg.Frequency = cfg.Dream.Frequency.Std()
	dreamCfg.ConsolidationThreshold = cfg.Dream.ConsolidationThreshold
	dreamCfg.OptimizationEnabled = cfg.Dream.OptimizationEnabled
	dreamCfg.OptimizationFloor = cfg.Dream.OptimizationFloor
	dreams := dream.New(store, gen, dreamCfg)

	emotionCfg := emotion.DefaultConfig()
	emotionCfg.ThoughtFrequency = cfg.Emotion.ThoughtFrequency.Std()
	engine := emotion.New(store, gen, emotionCfg)

	dreams.Start(ctx)
	defer dreams.Stop()
	engine.Start(ctx)
	defer engine.Stop()

	srv := server.New(store, dreams, engine, server.Config{Addr: cfg.Addr})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigc:
		log.Printf("Received %s, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
