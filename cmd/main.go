package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/config"
)

var (
	configFile string
	logLevel   string

	// cfg 在 PersistentPreRunE 中加载
	cfg *config.Config
)

// flagKeys 命令行参数到配置键的映射，显式设置的参数覆盖配置文件和环境变量
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"host":       "server.host",
	"port":       "server.port",
	"static-dir": "server.static_dir",
	"top-k":      "query.top_k",
	"reader":     "extract.reader",
	"workers":    "extract.workers",
	"ocr":        "extract.ocr.enabled",
	"queue":      "queue.enabled",
	"vectordb":   "vectordb.type",
}

var rootCmd = &cobra.Command{
	Use:   "regdoc",
	Short: "Structure regulatory PDFs and answer questions over them",
	Long: `regdoc turns building-code PDFs into clause, table, figure and note records,
indexes them into named vector collections, and answers questions with a
retrieval-augmented completion model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := make([]config.LoadOption, 0, len(flagKeys))
		for name, key := range flagKeys {
			opts = append(opts, config.WithFlag(key, cmd.Flags().Lookup(name)))
		}

		loaded, err := config.Load(configFile, opts...)
		if err != nil {
			return err
		}
		cfg = loaded

		// 只有服务进程把日志写到标准输出，其余命令的标准输出留给结果
		var out io.Writer = os.Stderr
		if cmd.Name() == "serve" {
			out = os.Stdout
		}
		logger := setupLogger(cfg.Log, out)
		if cfg.File != "" {
			logger.WithField("file", cfg.File).Debug("Using config file")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
}

// setupLogger 设置日志输出，配置了日志文件时同时写入按大小轮转的文件
func setupLogger(c config.LogConfig, out io.Writer) *logrus.Logger {
	if c.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		})
	}
	middleware.ConfigureLogger(c.Level, out)
	return middleware.GetLogger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
