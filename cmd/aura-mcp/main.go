// aura-mcp is the dashboard-facing MCP stdio server. It reads the same
// store as the daemon: UI clients poll the expression queue, report user
// responses, and read the prediction-accuracy dashboard through it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/store"
)

func main() {
	// Log to stderr so stdout stays clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[aura-mcp] ")

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	configPath := os.Getenv("AURA_CONFIG")
	if configPath == "" {
		configPath = "aura.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	s := server.NewMCPServer(
		"aura-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(pollTool(), handlePoll(st, clk))
	s.AddTool(respondTool(), handleRespond(st))
	s.AddTool(accuracyTool(), handleAccuracy(st))
	s.AddTool(healthTool(), handleHealth(st))
	s.AddTool(expressionsTool(), handleExpressions(st, clk))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func pollTool() mcp.Tool {
	return mcp.NewTool("queue_poll",
		mcp.WithDescription("Fetch pending queued expressions and mark them shown. Returns the messages the companion parked for the dashboard."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to fetch. Default: 10"),
		),
	)
}

func handlePoll(st *store.Store, clk clock.Clock) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		limit := 10
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		pending, err := st.PendingQueue(limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("queue read failed: %v", err)), nil
		}
		now := clk.Now()
		for _, q := range pending {
			if err := st.MarkQueueShown(q.ID, now); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("mark shown failed: %v", err)), nil
			}
		}
		out, _ := json.MarshalIndent(pending, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
}

func respondTool() mcp.Tool {
	return mcp.NewTool("queue_respond",
		mcp.WithDescription("Record the user's reaction to a shown queued expression."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Queued expression id"),
		),
		mcp.WithString("response",
			mcp.Required(),
			mcp.Description("One of: engaged, acknowledged, ignored, dismissed"),
		),
		mcp.WithNumber("effectiveness",
			mcp.Description("Effectiveness score 0.0-1.0. Default: 0.5"),
		),
	)
}

func handleRespond(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		id, _ := args["id"].(string)
		response, _ := args["response"].(string)
		if id == "" || response == "" {
			return mcp.NewToolResultError("id and response are required"), nil
		}
		effectiveness := 0.5
		if v, ok := args["effectiveness"].(float64); ok {
			effectiveness = v
		}
		if err := st.SetQueueResponse(id, store.UserResponse(response), effectiveness); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("record response failed: %v", err)), nil
		}
		return mcp.NewToolResultText("recorded"), nil
	}
}

func healthTool() mcp.Tool {
	return mcp.NewTool("health",
		mcp.WithDescription("Read the daemon's latest cycle health snapshot: whether the cycle completed normally, store degradation, and per-phase timings."),
	)
}

func handleHealth(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := st.LatestHealthSnapshot()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("health read failed: %v", err)), nil
		}
		if snap == nil {
			return mcp.NewToolResultText(`{"ok": false, "reason": "no completed cycle yet"}`), nil
		}
		out, _ := json.MarshalIndent(snap, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
}

func expressionsTool() mcp.Tool {
	return mcp.NewTool("recent_expressions",
		mcp.WithDescription("Inspect recent expression attempts: channel, success, suppress reason, user response, and effectiveness."),
		mcp.WithNumber("hours",
			mcp.Description("Lookback window in hours. Default: 24"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum attempts to return. Default: 50"),
		),
	)
}

func handleExpressions(st *store.Store, clk clock.Clock) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		hours := 24.0
		if v, ok := args["hours"].(float64); ok && v > 0 {
			hours = v
		}
		limit := 50
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		attempts, err := st.RecentAttempts(clk.Now().Add(-time.Duration(hours*float64(time.Hour))), limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("expression read failed: %v", err)), nil
		}
		out, _ := json.MarshalIndent(attempts, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
}

func accuracyTool() mcp.Tool {
	return mcp.NewTool("prediction_accuracy",
		mcp.WithDescription("Read the prediction-accuracy dashboard: verified count and hit rate per prediction type."),
	)
}

func handleAccuracy(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rows, err := st.AccuracyByType()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("accuracy read failed: %v", err)), nil
		}
		out, _ := json.MarshalIndent(rows, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
}
