package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jfmyers9/firstscrobbles/internal/config"
	"github.com/jfmyers9/firstscrobbles/internal/export"
	"github.com/jfmyers9/firstscrobbles/internal/fetch"
	"github.com/jfmyers9/firstscrobbles/internal/firsts"
	"github.com/jfmyers9/firstscrobbles/pkg/lastfm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	fetchFormat      string
	fetchOutputDir   string
	fetchSort        string
	fetchTimezone    string
	fetchStorePath   string
	fetchMetricsAddr string
	fetchBatchSize   int
	fetchMaxRetries  int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [username]",
	Short: "Fetch a user's history and report each artist's first scrobble",
	Long: `Fetch a Last.fm user's complete scrobble history and report the first
scrobble of every artist.

If no username is given, the configured default is used, and if there is
none you will be prompted for one.

Output formats:
  xlsx   spreadsheet <user>_1st_scrobbles_<unix time>.xlsx (default)
  csv    the same table as CSV
  table  an aligned table on stdout

Examples:
  firstscrobbles fetch rj
  firstscrobbles fetch rj --format table --sort date
  firstscrobbles fetch rj --timezone Europe/London --output-dir ~/Documents`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchFormat, "format", "", "Output format: xlsx, csv or table")
	fetchCmd.Flags().StringVar(&fetchOutputDir, "output-dir", "", "Directory for xlsx/csv output")
	fetchCmd.Flags().StringVar(&fetchSort, "sort", "", "Row order: first-seen, date or artist")
	fetchCmd.Flags().StringVar(&fetchTimezone, "timezone", "", "IANA time zone for dates (default: system zone)")
	fetchCmd.Flags().StringVar(&fetchStorePath, "store", "", "SQLite result store path (\"none\" disables it)")
	fetchCmd.Flags().StringVar(&fetchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while fetching, e.g. :9090")
	fetchCmd.Flags().IntVar(&fetchBatchSize, "batch-size", 0, "Pages fetched concurrently per batch")
	fetchCmd.Flags().IntVar(&fetchMaxRetries, "max-retries", -1, "Retries per page after the first attempt")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFetchFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	username := cfg.Username
	if len(args) > 0 {
		username = args[0]
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username, err = promptUsername(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	logger := setupLogger(logFile, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fetchMetricsAddr != "" {
		srv := startMetricsServer(fetchMetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return fetchFirsts(ctx, cfg, username, cmd.OutOrStdout(), logger)
}

// applyFetchFlags overrides config values with flags set on the command
// line.
func applyFetchFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = fetchFormat
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = fetchOutputDir
	}
	if flags.Changed("sort") {
		cfg.Sort = fetchSort
	}
	if flags.Changed("timezone") {
		cfg.Timezone = fetchTimezone
	}
	if flags.Changed("store") {
		cfg.Store.Path = fetchStorePath
		if strings.EqualFold(fetchStorePath, "none") {
			cfg.Store.Path = ""
		}
	}
	if flags.Changed("batch-size") {
		cfg.Fetch.BatchSize = fetchBatchSize
	}
	if flags.Changed("max-retries") {
		cfg.Fetch.MaxRetries = fetchMaxRetries
	}
}

// promptUsername asks for a username on in.
func promptUsername(in io.Reader, out io.Writer) (string, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Enter Last.fm username: ")
		line, err := reader.ReadString('\n')
		name := strings.TrimSpace(line)
		if name != "" {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("no username given")
		}
	}
}

// fetchFirsts runs the whole pipeline for one user: fetch, reduce,
// export and store.
func fetchFirsts(ctx context.Context, cfg *config.Config, username string, out io.Writer, logger zerolog.Logger) error {
	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	order, err := export.ParseSortOrder(cfg.Sort)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:     cfg.LastFM.APIKey,
		BaseURL:    cfg.LastFM.BaseURL,
		HTTPClient: &http.Client{},
		Logger:     lastfmLogger{logger: logger.With().Str("component", "lastfm").Logger()},
	})
	if err != nil {
		return fmt.Errorf("failed to create Last.fm client: %w", err)
	}

	driver := fetch.NewDriver(client.User(), cfg.DriverConfig(), nil, logger)
	engine := firsts.NewEngine(driver, firsts.Options{Location: loc}, logger)

	fmt.Fprintf(out, "Fetching scrobbles for %s...\n", username)
	result, runErr := engine.Run(ctx, username)

	store := openStore(cfg.Store.Path, logger)
	if store != nil {
		defer store.Close()
	}

	if runErr != nil {
		if store != nil {
			if err := store.SaveRun(context.Background(), result.Summary, nil); err != nil {
				logger.Warn().Err(err).Msg("Failed to record aborted run")
			}
		}
		return describeRunError(runErr, username)
	}

	rows := export.BuildRows(result.Artists, order)

	w, dest, err := openWriter(format, cfg.OutputDir, username, out)
	if err != nil {
		return err
	}
	written, err := export.Write(w, rows, logger)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}

	if store != nil {
		storeRun(ctx, store, result.Summary, rows, logger)
	}

	printSummary(out, result.Summary, written, dest)
	return nil
}

// openStore opens the result store, or returns nil when it is disabled
// or cannot be opened. The store is a convenience, so failures only
// warn.
func openStore(path string, logger zerolog.Logger) *export.Store {
	if path == "" {
		return nil
	}
	store, err := export.OpenStore(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Result store unavailable, run will not be saved")
		return nil
	}
	return store
}

// storeRun records a finished run and its rows. Failures only warn.
func storeRun(ctx context.Context, store *export.Store, summary firsts.Summary, rows []export.Row, logger zerolog.Logger) {
	rw := store.NewRunWriter(ctx, summary)
	if _, err := export.Write(rw, rows, zerolog.Nop()); err != nil {
		logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to store run")
		return
	}
	if err := rw.Close(); err != nil {
		logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to store run")
	}
}

// openWriter returns the sink for format and where it writes to.
func openWriter(format export.Format, dir, username string, stdout io.Writer) (export.Writer, string, error) {
	if format == export.FormatTable {
		return export.NewTableWriter(stdout, 0), "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := export.Filename(dir, username, time.Now(), format)

	if format == export.FormatCSV {
		f, err := os.Create(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		return &fileCSVWriter{CSVWriter: export.NewCSVWriter(f), file: f}, path, nil
	}

	w, err := export.NewXLSXWriter(path)
	if err != nil {
		return nil, "", err
	}
	return w, path, nil
}

// fileCSVWriter closes the file under a CSVWriter.
type fileCSVWriter struct {
	*export.CSVWriter
	file *os.File
}

func (w *fileCSVWriter) Close() error {
	err := w.CSVWriter.Close()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

func describeRunError(err error, username string) error {
	switch {
	case errors.Is(err, lastfm.ErrUserNotFound):
		return fmt.Errorf("Last.fm user %q does not exist: %w", username, err)
	case lastfm.IsAuthError(err):
		return fmt.Errorf("Last.fm rejected the API key, check lastfm.api_key: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("fetch interrupted: %w", err)
	default:
		return err
	}
}

func printSummary(out io.Writer, s firsts.Summary, written int, dest string) {
	elapsed := s.FinishedAt.Sub(s.StartedAt).Round(time.Second)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Scrobbles scanned:  %s (%s accepted)\n", humanize.Comma(int64(s.EventsSeen)), humanize.Comma(int64(s.EventsAccepted)))
	fmt.Fprintf(out, "Pages fetched:      %s of %s\n", humanize.Comma(int64(s.PagesFetched)), humanize.Comma(int64(s.TotalPages)))
	fmt.Fprintf(out, "Artists:            %s\n", humanize.Comma(int64(s.TotalArtists)))
	if s.MissingPageCount() > 0 {
		fmt.Fprintf(out, "Missing pages:      %d %v\n", s.MissingPageCount(), s.MissingPages)
	}
	if skipped := s.TotalArtists - written; skipped > 0 {
		fmt.Fprintf(out, "Rows skipped:       %d (see log)\n", skipped)
	}
	fmt.Fprintf(out, "Elapsed:            %s\n", elapsed)
	fmt.Fprintf(out, "Run ID:             %s\n", s.RunID)

	if dest != "" {
		size := ""
		if info, err := os.Stat(dest); err == nil {
			size = fmt.Sprintf(" (%s)", humanize.IBytes(uint64(info.Size())))
		}
		fmt.Fprintf(out, "\nSaved %s rows to %s%s\n", humanize.Comma(int64(written)), dest, size)
	}
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return srv
}
