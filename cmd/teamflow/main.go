// =============================================================================
// Teamflow 主入口
// =============================================================================
// 层级路由引擎的命令行入口：加载配置、组装层级、路由任务。
//
// 使用方法:
//
//	teamflow run --task "..."                # 路由并执行单个任务
//	teamflow run --flow --task "..."         # 按配置的任务流执行
//	teamflow run --config config.yaml ...    # 指定配置文件
//	teamflow validate --config config.yaml   # 校验配置
//	teamflow status --config config.yaml     # 打印层级概览
//	teamflow version                         # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/hierarchy"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/internal/telemetry"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runTask(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🚀 run 命令
// =============================================================================

func runTask(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	taskDesc := fs.String("task", "", "Task description to route")
	useFlow := fs.Bool("flow", false, "Run the configured multi-stage task flow")
	metricsAddr := fs.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall deadline for the task")
	fs.Parse(args)

	if *taskDesc == "" {
		fmt.Fprintln(os.Stderr, "run requires --task")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Teamflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelProviders.Shutdown(ctx)
	}()

	collector := metrics.NewCollector("teamflow", logger)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	h, err := hierarchy.NewBuilder(cfg, ackExecutor(), logger).
		WithCollector(collector).
		Build()
	if err != nil {
		logger.Fatal("Failed to build hierarchy", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	task := types.NewTask(*taskDesc)
	if *useFlow {
		fr, err := h.RunFlow(ctx, task)
		if err != nil {
			logger.Error("task flow failed", zap.Error(err))
			if fr != nil {
				printJSON(fr)
			}
			os.Exit(1)
		}
		printJSON(fr)
		return
	}

	result, err := h.Run(ctx, task)
	if err != nil {
		logger.Error("task failed", zap.Error(err))
		printJSON(task)
		os.Exit(1)
	}
	printJSON(struct {
		Task   *types.Task            `json:"task"`
		Result *types.ExecutionResult `json:"result"`
	}{task, result})
}

// ackExecutor 返回确认型执行器：不接真实 agent，只回显分派结果。
// 用于验证路由配置；接入真实执行时替换为业务自己的 team.Executor。
func ackExecutor() team.Executor {
	return team.ExecutorFunc(func(_ context.Context, agentID string, task *types.Task) (*types.ExecutionResult, error) {
		return &types.ExecutionResult{
			Output:  fmt.Sprintf("[%s] acknowledged: %s", agentID, task.Description),
			Success: true,
		}, nil
	})
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", zap.Error(err))
	}
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loadConfig(*configPath)
	fmt.Println("OK")
}

// =============================================================================
// 📊 status 命令
// =============================================================================

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := zap.NewNop()

	h, err := hierarchy.NewBuilder(cfg, ackExecutor(), logger).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build hierarchy: %v\n", err)
		os.Exit(1)
	}
	printJSON(h.Info())
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Teamflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Teamflow - Hierarchical task routing engine

Usage:
  teamflow <command> [options]

Commands:
  run       Route a task through the hierarchy
  validate  Validate a configuration file
  status    Print the hierarchy overview
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>        Path to configuration file (YAML)
  --task <description>   Task description to route (required)
  --flow                 Run the configured multi-stage task flow
  --metrics-addr <addr>  Expose Prometheus metrics (e.g. :9090)
  --timeout <duration>   Overall deadline (default 5m)

Examples:
  teamflow run --config teams.yaml --task "research the latest AI news"
  teamflow run --config teams.yaml --flow --task "publish the weekly issue"
  teamflow validate --config teams.yaml
  teamflow status --config teams.yaml`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
