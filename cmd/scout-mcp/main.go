package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/engine"
	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/scraper"
	"github.com/use-agent/scout/sites"
	"github.com/use-agent/scout/stream"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	reg, err := sites.Load(cfg.Sites.Path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load sites: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Watch(ctx, cfg.Sites.ReloadInterval)

	sc, err := scraper.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init scraper: %v\n", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"scout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_catalog",
		mcp.WithDescription("Search catalog sites for a title and return every match found, with its source site, link and poster image. Sites that fail are reported alongside the results."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The title to search for"),
		),
		mcp.WithArray("sites",
			mcp.Description("Site ids to search (default: every configured site). Use list_sites to see the ids."),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(searchTool, handleSearch(reg, sc, cfg.Worker.PlainWorkers, logger))

	listTool := mcp.NewTool("list_sites",
		mcp.WithDescription("List the configured catalog sites and how each one is fetched."),
	)
	s.AddTool(listTool, handleListSites(reg))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSearch(reg *sites.Registry, sc *scraper.Scraper, limit int, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		ids := request.GetStringSlice("sites", nil)
		if len(ids) == 0 {
			ids = reg.IDs()
		}
		for _, id := range ids {
			if _, ok := reg.Lookup(id); !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown site %q (known: %s)", id, strings.Join(reg.IDs(), ", "))), nil
			}
		}

		const channel = "mcp"
		collector := stream.NewCollector()
		runner := engine.NewRunner(reg, sc, collector, logger)
		engine.RunAll(ctx, runner, engine.FanOut(ids, query, channel), limit)

		return mcp.NewToolResultText(formatMessages(query, collector.Messages(channel))), nil
	}
}

func handleListSites(reg *sites.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sb strings.Builder
		for _, s := range reg.List() {
			fmt.Fprintf(&sb, "- %s (%s): %s, %s\n", s.ID, s.Name, s.FetchMode, s.BaseURL)
		}
		if sb.Len() == 0 {
			return mcp.NewToolResultText("No sites configured."), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// formatMessages renders results first, then per-site errors.
func formatMessages(query string, msgs []models.Message) string {
	var results, failures strings.Builder
	n := 0
	for _, m := range msgs {
		switch m.Type {
		case models.MessageResult:
			n++
			fmt.Fprintf(&results, "%d. %s [%s]\n   Link: %s\n", n, m.Result.Title, m.Result.Source, m.Result.Link)
			if m.Result.Poster != "" {
				fmt.Fprintf(&results, "   Poster: %s\n", m.Result.Poster)
			}
		case models.MessageError:
			fmt.Fprintf(&failures, "- %s\n", m.ErrorMessage)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q.\n\n", n, query)
	sb.WriteString(results.String())
	if failures.Len() > 0 {
		sb.WriteString("\nErrors:\n")
		sb.WriteString(failures.String())
	}
	return sb.String()
}
