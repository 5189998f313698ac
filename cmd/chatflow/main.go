// Command chatflow is a headless driver for the conversation engine:
// it submits one query against a backend conversation and prints each
// reduced transcript state as a JSON line. It exists to exercise the
// wiring end to end; rendering is someone else's job.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chatflow/internal/config"
	"chatflow/internal/domain/models/chat"
	"chatflow/internal/service/chat/classifier"
	"chatflow/internal/service/chat/loader"
	"chatflow/internal/service/chat/orchestrator"
	"chatflow/internal/service/chat/plan"
	"chatflow/internal/service/chat/reducer"
	"chatflow/internal/service/chat/scheduler"
	"chatflow/internal/transport"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist)
	_ = godotenv.Load()

	cfg := config.Load()

	conversationID := flag.String("conversation", "", "conversation id to attach to")
	mode := flag.String("mode", "default", "agent identity (default|networked|deep-research)")
	resume := flag.Bool("resume", false, "load history and recover an in-flight turn")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run deadline")
	flag.Parse()

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logWriter := io.Writer(os.Stderr)
	if cfg.LogDir != "" {
		if f, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles); err == nil {
			defer f.Close()
			logWriter = f
		}
	}
	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *conversationID == "" {
		log.Fatal("missing -conversation")
	}
	query := strings.Join(flag.Args(), " ")
	if query == "" && !*resume {
		log.Fatal("nothing to do: pass a query or -resume")
	}

	registry := classifier.DefaultRegistry()
	if len(cfg.Engine.SuppressedTools) > 0 {
		registry.Suppress(cfg.Engine.SuppressedTools...)
	}
	if len(cfg.Engine.SearchKinds) > 0 {
		table := make([]plan.KindRule, len(cfg.Engine.SearchKinds))
		for i, rule := range cfg.Engine.SearchKinds {
			table[i] = plan.KindRule{Substring: rule.Substring, Kind: rule.Kind}
		}
		plan.DefaultKindTable = table
	}

	cls := classifier.New(registry, logger)
	modes := agentModes(cfg)
	red := reducer.New(cls, modes, logger)
	ld := loader.New(cls, modes, logger)
	client := transport.NewClient(cfg.BaseURL, logger)
	sched := scheduler.New(scheduler.RealClock())

	orch := orchestrator.New(client, red, ld, sched, orchestrator.Config{
		AgentID:          cfg.AgentID,
		AgentVersion:     cfg.AgentVersion,
		AutoConfirmDelay: cfg.Engine.AutoConfirmDelay(),
		RenewThreshold:   cfg.Engine.RenewThreshold(),
		TickInterval:     cfg.Engine.TickInterval(),
	}, logger)
	defer orch.Close()

	done := make(chan struct{}, 1)
	enc := json.NewEncoder(os.Stdout)
	red.Subscribe(func(turns []chat.Turn) {
		if err := enc.Encode(turns); err != nil {
			logger.Error("transcript encode failed", "error", err)
		}
		if n := len(turns); n > 0 && finalTurn(turns[n-1]) {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := orch.SelectConversation(ctx, *conversationID); err != nil {
		log.Fatalf("select conversation: %v", err)
	}
	defer orch.Deselect()

	if *resume {
		if err := orch.Resume(ctx); err != nil {
			log.Fatalf("resume: %v", err)
		}
		if !orch.InFlight() && query == "" {
			return
		}
	}
	if query != "" {
		if err := orch.Submit(ctx, *mode, query, nil); err != nil {
			log.Fatalf("submit: %v", err)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		_ = orch.Cancel(context.Background())
		fmt.Fprintln(os.Stderr, "deadline reached, turn cancelled")
	}
}

// finalTurn reports whether a terminal turn actually ends the run. A
// completed plan turn is not final: auto-confirm continues it and the
// report turn follows.
func finalTurn(turn chat.Turn) bool {
	if !turn.Terminal() {
		return false
	}
	if turn.Speaker == chat.SpeakerAgentPlan && turn.State == chat.TurnStateCompleted {
		return false
	}
	return true
}

// agentModes builds the per-conversation identity→speaker table, config
// entries layered over the defaults.
func agentModes(cfg *config.Config) map[string]string {
	modes := map[string]string{
		"default":       chat.SpeakerAgentNormal,
		"networked":     chat.SpeakerAgentNetworked,
		"deep-research": chat.SpeakerAgentPlan,
	}
	for identity, speaker := range cfg.Engine.AgentModes {
		modes[identity] = speaker
	}
	return modes
}
