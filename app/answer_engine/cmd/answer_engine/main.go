package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/engine"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

var (
	configPath string
	logLevel   string
	streamMode bool
	searchOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "answer_engine",
	Short: "Grounded web answers with per-sentence citations",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer a single query",
	Long: `Answer a single query and print the result.

  answer_engine ask "what is osmosis"            full answer as JSON
  answer_engine ask --search-only "..."          analysis and ranked sources only
  answer_engine ask --stream "..."               stream events as they are produced`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level override: debug, info, warn, error")
	askCmd.Flags().BoolVar(&streamMode, "stream", false, "Print stream events line by line")
	askCmd.Flags().BoolVar(&searchOnly, "search-only", false, "Skip synthesis, print analysis and sources")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("无法加载配置文件: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return fmt.Errorf("无法初始化日志: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if streamMode {
		return printStream(ctx, eng, query, out)
	}

	req := &model.SearchRequest{Query: query}
	var resp *model.SearchResponse
	if searchOnly {
		resp, err = eng.Search(ctx, req)
	} else {
		resp, err = eng.Answer(ctx, req)
	}
	if err != nil {
		return err
	}

	data, err := sonic.ConfigStd.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func printStream(ctx context.Context, eng *engine.Engine, query string, out io.Writer) error {
	s := eng.Stream(ctx, query)
	defer s.Close()

	for {
		ev, ok := s.Next()
		if !ok {
			return nil
		}
		data, err := sonic.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
			return err
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
