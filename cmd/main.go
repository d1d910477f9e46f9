package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/handler"
	"github.com/gomcpgo/remote_image_ai/pkg/logging"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
)

// Version information (set by build script)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

const serverName = "Remote Image AI"

// Default test prompt
const defaultTestPrompt = "A lighthouse on a rocky coast at dusk, dramatic clouds, highly detailed"

// options are the parsed command line flags
type options struct {
	configPath string
	listModels bool
	generate   bool
	prompt     string
	model      string
	captionImg string
}

func main() {
	var (
		opts        options
		versionFlag bool
	)

	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flag.BoolVar(&versionFlag, "version", false, "Show version information")
	flag.BoolVar(&opts.listModels, "list-models", false, "List the models offered by the image service")
	flag.BoolVar(&opts.generate, "generate", false, "Generate one image and exit")
	flag.StringVar(&opts.prompt, "p", defaultTestPrompt, "Prompt for -generate")
	flag.StringVar(&opts.model, "model", "", "Model for -generate")
	flag.StringVar(&opts.captionImg, "caption", "", "Caption a saved image (record id, resource URI or token) and exit")
	flag.Parse()

	if versionFlag {
		fmt.Printf("Remote Image AI MCP Server\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run builds the server from opts and either runs one smoke-test tool or
// serves MCP on stdio. It returns the process exit code once every
// resource it opened has been released.
func run(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Log, cfg.DebugMode)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector("remote_image_ai", logger)
	h, cleanup, err := handler.NewFromConfig(ctx, cfg, logger, collector)
	if err != nil {
		logger.Error("failed to create handler", zap.Error(err))
		return 1
	}
	defer cleanup()

	// Command-line testing options
	switch {
	case opts.listModels:
		return runTool(ctx, stdout, h, "list_models", nil)
	case opts.generate:
		args := map[string]interface{}{"prompt": opts.prompt}
		if opts.model != "" {
			args["model"] = opts.model
		}
		return runTool(ctx, stdout, h, "generate_image", args)
	case opts.captionImg != "":
		args := map[string]interface{}{"image_id": opts.captionImg}
		if !strings.Contains(opts.captionImg, "://") && !looksLikeRecordID(opts.captionImg) {
			args = map[string]interface{}{"token": opts.captionImg}
		}
		return runTool(ctx, stdout, h, "caption_image", args)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}
	go h.Pending().RunSweeper(ctx, time.Minute)

	logger.Info("starting MCP server",
		zap.String("version", Version),
		zap.String("base_url", cfg.BaseURL),
		zap.String("images_root", cfg.ImagesRoot),
	)
	if err := server.ServeStdio(h.NewMCPServer(serverName, Version)); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}
	return 0
}

// runTool calls one tool outside of MCP and prints the response. It returns
// the process exit code.
func runTool(ctx context.Context, out io.Writer, h *handler.ImageHandler, name string, args map[string]interface{}) int {
	fmt.Fprintf(out, "Running %s\n---\n", name)
	startTime := time.Now()

	res, err := h.CallTool(ctx, name, args)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "Time: %v\n", time.Since(startTime).Round(time.Millisecond))
	fmt.Fprintln(out, res.Text)
	if res.IsError {
		return 1
	}
	return 0
}

// Record ids are UUIDs.
func looksLikeRecordID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}
