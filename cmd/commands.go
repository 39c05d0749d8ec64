package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

var (
	extractOutput    string
	indexCollection  string
	indexMode        string
	queryCollection  string
	watchCollection  string
	watchMode        string
	watchNoScan      bool
	extractMarkdown  bool
	queryShowSources bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Structure a PDF into clause, table, figure and note records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		ext, err := newExtractor(cfg).Extract(cmd.Context(), path)
		if err != nil {
			return err
		}

		var data []byte
		if extractMarkdown {
			title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			data = []byte(structure.RenderMarkdown(title, ext.Records))
		} else if data, err = structure.MarshalRecords(ext.Records); err != nil {
			return err
		}

		out := extractOutput
		if out == "" {
			out = defaultOutput(path, extractMarkdown)
		}
		if out == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderExtraction(out, ext))
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <json>",
	Short: "Index a structured JSON file into a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := models.ParseIngestMode(indexMode)
		if !ok {
			return fmt.Errorf("%w: %s", services.ErrInvalidMode, indexMode)
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		records, err := structure.ReadRecords(f)
		if err != nil {
			return fmt.Errorf("failed to read records: %w", err)
		}
		fileID, err := services.FileIDFromName(filepath.Base(args[0]))
		if err != nil {
			return err
		}

		a, err := newApp(cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ingest.IndexRecords(cmd.Context(), fileID, indexCollection, records, mode)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderIndexed(res))
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from a collection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, appOptions{llm: true})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.Answer(cmd.Context(), services.QueryRequest{
			Collection: queryCollection,
			Query:      strings.Join(args, " "),
			TopK:       cfg.Query.TopK,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(res, queryShowSources))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest PDFs dropped into a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection := watchCollection
		if collection == "" {
			collection = cfg.Watch.Collection
		}
		if collection == "" {
			return errors.New("--collection is required")
		}
		mode, ok := models.ParseIngestMode(watchMode)
		if !ok {
			return fmt.Errorf("%w: %s", services.ErrInvalidMode, watchMode)
		}
		cfg.Watch.ScanExisting = !watchNoScan

		a, err := newApp(cfg, appOptions{queue: true})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := exitOnSignal()
		defer stop()

		a.logger.WithFields(logrus.Fields{
			"dir":        args[0],
			"collection": collection,
			"mode":       mode,
		}).Info("Watching inbox")

		err = newWatcher(a, args[0], collection, mode).Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output file, - for stdout (default <pdf name>.json)")
	extractCmd.Flags().BoolVar(&extractMarkdown, "markdown", false, "Write markdown instead of JSON")
	extractCmd.Flags().String("reader", "ledongthuc", "Text layer reader (ledongthuc/pdfcpu)")
	extractCmd.Flags().Int("workers", 4, "Pages processed concurrently")
	extractCmd.Flags().Bool("ocr", false, "Enable OCR fallback for pages without a text layer")

	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "Target collection")
	indexCmd.Flags().StringVar(&indexMode, "mode", string(models.ModeAppend), "Re-ingestion mode (append/replace/recreate)")
	indexCmd.Flags().String("vectordb", "faiss", "Vector store type (memory/faiss/milvus)")
	_ = indexCmd.MarkFlagRequired("collection")

	queryCmd.Flags().StringVar(&queryCollection, "collection", "", "Collection to search")
	queryCmd.Flags().Int("top-k", 20, "Number of entries retrieved as context")
	queryCmd.Flags().BoolVar(&queryShowSources, "sources", true, "Print the retrieved sources")
	queryCmd.Flags().String("vectordb", "faiss", "Vector store type (memory/faiss/milvus)")
	_ = queryCmd.MarkFlagRequired("collection")

	watchCmd.Flags().StringVar(&watchCollection, "collection", "", "Target collection (default watch.collection)")
	watchCmd.Flags().StringVar(&watchMode, "mode", string(models.ModeAppend), "Re-ingestion mode (append/replace/recreate)")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "Skip PDFs already present in the directory")
	watchCmd.Flags().Bool("queue", false, "Submit ingestion tasks to the queue instead of processing inline")
	watchCmd.Flags().Bool("ocr", false, "Enable OCR fallback for pages without a text layer")

	rootCmd.AddCommand(extractCmd, indexCmd, queryCmd, watchCmd)
}

// defaultOutput 与PDF同名的输出文件，写在当前目录
func defaultOutput(pdfPath string, markdown bool) string {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	if markdown {
		return stem + ".md"
	}
	return stem + ".json"
}
