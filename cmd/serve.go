package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/regdoc-rag/api"
	"github.com/fyerfyer/regdoc-rag/api/handler"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API for uploading PDFs and querying collections.
When the task queue is enabled an ingestion worker runs in the same process,
and when watch is enabled the inbox directory is ingested as files arrive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "Listen host")
	serveCmd.Flags().Int("port", 8080, "Listen port")
	serveCmd.Flags().String("static-dir", "./static", "Directory containing the web UI index.html")
	serveCmd.Flags().String("vectordb", "faiss", "Vector store type (memory/faiss/milvus)")
	serveCmd.Flags().Bool("queue", false, "Enable asynchronous ingestion through the task queue")
	serveCmd.Flags().Bool("ocr", false, "Enable OCR fallback for pages without a text layer")

	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	gin.SetMode(cfg.Server.Mode)

	a, err := newApp(cfg, appOptions{llm: true, queue: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	logger.Info("Starting regulatory document service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.queue != nil {
		stopWorker, err := startWorker(a)
		if err != nil {
			return err
		}
		defer stopWorker()
		logger.Info("Document processing will use async task queue")
	}

	if cfg.Watch.Enabled {
		mode, ok := models.ParseIngestMode(cfg.Watch.Mode)
		if !ok {
			return errors.New("invalid watch.mode: " + cfg.Watch.Mode)
		}
		w := newWatcher(a, cfg.Watch.Dir, cfg.Watch.Collection, mode)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Inbox watcher stopped")
			}
		}()
	}

	router := api.SetupRouter(api.Handlers{
		Document:   handler.NewDocumentHandler(a.ingest, int64(cfg.Server.MaxUploadMB)<<20),
		Query:      handler.NewQueryHandler(a.pipeline),
		Collection: handler.NewCollectionHandler(a.ingest),
		Task:       handler.NewTaskHandler(a.ingest),
		Health:     handler.Health(a.ingest, a.checks...),
	}, api.RouterOptions{
		AuthUsers:   cfg.Auth.Accounts(),
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     srv.Addr,
			"vectordb": cfg.VectorDB.Type,
			"auth":     cfg.Auth.Enabled,
		}).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}

	logger.Info("Server exited")
	return nil
}

// newWatcher 收件目录中的PDF按配置的集合和策略入库；启用队列时只提交任务
func newWatcher(a *app, dir, collection string, mode models.IngestMode) *watch.Watcher {
	ingest := func(ctx context.Context, path string) error {
		var err error
		if a.ingest.AsyncEnabled() {
			_, err = a.ingest.IngestFileAsync(ctx, path, collection, mode)
		} else {
			_, err = a.ingest.IngestFile(ctx, path, collection, mode)
		}
		return err
	}
	return watch.New(dir, ingest,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithScanExisting(cfg.Watch.ScanExisting),
		watch.WithLogger(a.logger),
	)
}

// exitOnSignal 返回在收到中断信号时取消的上下文
func exitOnSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
