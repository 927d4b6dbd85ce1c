package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/poiesic/thinkdocs/config"
	"github.com/poiesic/thinkdocs/ingestion"
	"github.com/poiesic/thinkdocs/reembed"
	"github.com/poiesic/thinkdocs/search"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func registerCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	owner := c.String("owner")
	var failed int
	for _, input := range c.Args().Slice() {
		doc, err := sys.RegisterDocument(c.Context, input, owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", input, err)
			failed++
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", doc.ID, input)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be registered", failed, c.NArg())
	}
	return nil
}

func processCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one document id is required")
	}
	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	var failed int
	for _, id := range c.Args().Slice() {
		res := sys.Process(c.Context, id)
		printResult(c, id, res)
		if !res.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, c.NArg())
	}
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	workers := c.Int("workers")
	if workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	sys, err := openSystem(c, func(cfg *config.Config) {
		if c.Bool("keep-input") {
			cfg.KeepInput = true
		}
	})
	if err != nil {
		return err
	}
	defer sys.Close()

	inputs := c.Args().Slice()
	results := make([]*ingestion.RunResult, len(inputs))
	errs := make([]error, len(inputs))

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(workers)
	owner := c.String("owner")
	for i, input := range inputs {
		g.Go(func() error {
			// per-document failures are reported, not propagated, so one bad
			// file does not cancel the rest
			results[i], errs[i] = sys.Ingest(ctx, input, owner)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	for i, input := range inputs {
		if errs[i] != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", input, errs[i])
			failed++
			continue
		}
		printResult(c, input, results[i])
		if !results[i].Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(inputs))
	}
	return nil
}

func printResult(c *cli.Context, label string, res *ingestion.RunResult) {
	if res.Succeeded() {
		note := ""
		if res.Duplicate {
			note = " (already processed)"
		}
		fmt.Fprintf(c.App.Writer, "%s\tcompleted\t%s\t%d chunks\t%v%s\n",
			label, res.DocumentID, res.ChunkCount, res.ProcessingTime.Round(time.Millisecond), note)
		return
	}
	fmt.Fprintf(c.App.Writer, "%s\tfailed\t%s\t%s: %s\n", label, res.DocumentID, res.ErrorType, res.Error)
}

func sweepCommand(c *cli.Context) error {
	var interval time.Duration
	sys, err := openSystem(c, func(cfg *config.Config) {
		if c.IsSet("stale-after") {
			cfg.StaleAfter = c.Duration("stale-after")
		}
		interval = cfg.SweepInterval
	})
	if err != nil {
		return err
	}
	defer sys.Close()

	sweeper, err := sys.NewSweeper()
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		fmt.Fprintf(os.Stderr, "Sweeping every %v, press Ctrl-C to stop\n", interval)
		return sweeper.Run(c.Context, interval)
	}

	report, err := sweeper.Sweep(c.Context)
	if report != nil {
		for _, d := range report.Documents {
			fmt.Fprintf(c.App.Writer, "document\t%s\t%s\n", d.ID, d.Filename)
		}
		for _, id := range report.Jobs {
			fmt.Fprintf(c.App.Writer, "job\t%s\n", id)
		}
		fmt.Fprintf(os.Stderr, "Recovered %d documents and %d jobs older than %s\n",
			len(report.Documents), len(report.Jobs), report.Cutoff.Format(time.RFC3339))
	}
	return err
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		DocumentIDs:    c.StringSlice("document"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	cfg := sys.Config()
	fmt.Fprintf(os.Stderr, "Backend: %s\n", cfg.Backend())
	fmt.Fprintf(os.Stderr, "Embedding provider: %s\n", cfg.AI.Provider)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if _, err := sys.NewReembedder(reembedConfig, os.Stderr).Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}
	hits, err := searcher.Search(c.Context, search.Query{
		Text:    query,
		MaxHits: c.Int("limit"),
		OwnerID: c.String("owner"),
	}, nil)
	if err != nil {
		return err
	}

	for _, hit := range hits {
		fmt.Fprintf(c.App.Writer, "%.3f\t%s#%d\t%s\n",
			hit.Score, hit.Record.SourceFile, hit.Record.ChunkIndex, preview(hit.Record.Content, 80))
	}
	if len(hits) == 0 {
		fmt.Fprintln(os.Stderr, "No matches")
	}
	return nil
}

func chunksCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one document id is required")
	}
	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	store, err := sys.Store(c.Context)
	if err != nil {
		return err
	}
	defer store.Close()

	chunks, err := store.GetChunks(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		page := "-"
		if ch.PageNumber != nil {
			page = fmt.Sprint(*ch.PageNumber)
		}
		fmt.Fprintf(c.App.Writer, "%d\tpage %s\t%d chars\t%s\n",
			ch.Index, page, len([]rune(ch.Content)), preview(ch.Content, c.Int("preview")))
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one document id is required")
	}
	sys, err := openSystem(c, nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	store, err := sys.Store(c.Context)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.GetDocument(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", doc.ID, doc.Filename, doc.Status)

	jobs, err := store.ListJobs(c.Context, doc.ID)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		started := "-"
		if job.StartedAt != nil {
			started = job.StartedAt.Format(time.RFC3339)
		}
		line := fmt.Sprintf("%s\t%s\t%s", job.TaskID, job.Status, started)
		if job.ErrorMessage != "" {
			line += "\t" + job.ErrorMessage
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

// preview flattens whitespace and truncates s to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
