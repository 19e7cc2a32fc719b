package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/NathanLabbe/local-rag/internal/app"
	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
)

var (
	ingestURL         string
	ingestDepth       int
	ingestDrive       bool
	ingestDriveFolder string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths or globs...]",
	Short: "Ingest local files, a website or Google Drive",
	Long: `Ingest documents into the vector store.

Paths may be files, directories (searched recursively for supported files)
or doublestar globs.

Examples:
  rag ingest README.md docs/                # Files and directories
  rag ingest 'notes/**/*.md'                # Glob
  rag ingest --url https://go.dev/doc/ --depth 2
  rag ingest --drive-folder 1AbCdEf         # One Drive folder`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "crawl and ingest this URL")
	ingestCmd.Flags().IntVar(&ingestDepth, "depth", -1, "link depth to crawl (default from config)")
	ingestCmd.Flags().BoolVar(&ingestDrive, "drive", false, "ingest all eligible Google Drive files")
	ingestCmd.Flags().StringVar(&ingestDriveFolder, "drive-folder", "", "ingest Google Drive files in this folder")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && ingestURL == "" && !ingestDrive && ingestDriveFolder == "" {
		return fmt.Errorf("nothing to ingest: pass paths, --url, --drive or --drive-folder")
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		total    int
		failures []error
	)
	report := func(docs []models.Document, err error) {
		total += len(docs)
		if err != nil {
			failures = append(failures, err)
		}
	}

	if len(args) > 0 {
		logger.Section("Local files")
		files, err := collectFiles(args)
		if err != nil {
			return err
		}
		var sources []models.SourceDocument
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			doc, err := app.ReadDocument(path, data, "file:"+path)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			sources = append(sources, doc)
		}
		bar := getProgressBar(len(sources), " Ingesting files")
		report(a.Pipeline.IngestAll(ctx, sources, progressFunc(bar)))
		bar.Finish()
		fmt.Println()
	}

	if ingestURL != "" {
		logger.Section("Web: " + ingestURL)
		var pages int32
		spinner := getSpinner(" Crawling " + ingestURL)
		s, err := a.NewScraper(ingestDepth, func(string) {
			n := atomic.AddInt32(&pages, 1)
			spinner.Describe(color.CyanString(" Crawling %s (%d pages)", ingestURL, n))
		})
		if err != nil {
			return err
		}
		docs, err := s.Scrape(ctx, ingestURL)
		spinner.Finish()
		if err != nil {
			failures = append(failures, err)
		} else {
			color.Green("✓ Crawled %d pages", len(docs))
			bar := getProgressBar(len(docs), " Ingesting pages")
			report(a.Pipeline.IngestAll(ctx, docs, progressFunc(bar)))
			bar.Finish()
			fmt.Println()
		}
	}

	if ingestDrive || ingestDriveFolder != "" {
		logger.Section("Google Drive")
		bar := getProgressBar(-1, " Ingesting Google Drive")
		report(a.IngestDrive(ctx, ingestDriveFolder, progressFunc(bar)))
		bar.Finish()
		fmt.Println()
	}

	for _, err := range failures {
		color.Red("✗ %v", err)
	}
	color.Green("✓ Ingested %d documents", total)
	if len(failures) > 0 {
		return fmt.Errorf("%d sources failed", len(failures))
	}
	return nil
}

// collectFiles expands files, directories and globs into a sorted, unique
// list of supported files.
func collectFiles(args []string) ([]string, error) {
	exts := strings.Join(trimDots(app.SupportedExtensions), ",")
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			matches, err := doublestar.Glob(os.DirFS(arg), "**/*.{"+exts+"}")
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", arg, err)
			}
			for _, m := range matches {
				add(filepath.Join(arg, filepath.FromSlash(m)))
			}
		case err == nil:
			add(arg)
		default:
			matches, gerr := doublestar.FilepathGlob(arg)
			if gerr != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", arg, gerr)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match %s", arg)
			}
			for _, m := range matches {
				if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
					add(m)
				}
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

func trimDots(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.TrimPrefix(e, ".")
	}
	return out
}
