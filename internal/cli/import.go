package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/database"
	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/modules/importmodule"
	"github.com/cardhaul/cardhaul/internal/modules/importmodule/pipeline"
	"github.com/cardhaul/cardhaul/internal/modules/thumbmodule"
)

type importOptions struct {
	dest            string
	deleteOriginals bool
	dryRun          bool
	assumeYes       bool
	verbose         bool
	mediaTypes      []string
}

func newImportCommand() *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import <volume-path>",
		Short: "Scan a volume and import its media into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dest, "dest", "d", "",
		"destination library root (overrides configuration)")
	cmd.Flags().BoolVar(&opts.deleteOriginals, "delete-originals", false,
		"remove source files after a verified copy")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false,
		"scan and resolve only; copy nothing")
	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false,
		"skip the confirmation prompt")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"list every file with its resolved destination")
	cmd.Flags().StringSliceVarP(&opts.mediaTypes, "types", "t", nil,
		"restrict to media types (photo, video, audio, raw)")
	return cmd
}

func runImport(root string, opts *importOptions) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a readable directory", root)
	}

	cfg := config.GetManager()
	if err := cfg.Load(cfgPath); err != nil {
		return err
	}
	if err := cfg.Update(func(c *config.Config) {
		if opts.dest != "" {
			c.Library.DestinationRoot = opts.dest
		}
		if opts.deleteOriginals {
			c.Library.DeleteOriginals = true
		}
		if len(opts.mediaTypes) > 0 {
			c.Library.MediaTypes = opts.mediaTypes
		}
	}); err != nil {
		return err
	}
	conf := cfg.Get()

	var thumbs pipeline.ThumbnailRequester
	if conf.Thumbnails.Enabled && !opts.dryRun {
		cache, err := thumbmodule.NewCache(conf.Thumbnails.CacheDir,
			conf.Thumbnails.MaxEdge, conf.Thumbnails.QueueSize)
		if err != nil {
			return err
		}
		defer cache.Close()
		thumbs = cache
	}

	var history *database.Store
	if conf.History.Enabled && !opts.dryRun {
		history, err = database.Open(conf.History.DatabasePath)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	bus := events.NewEventBus(256)
	if err := bus.Start(); err != nil {
		return err
	}
	defer bus.Stop()

	mod := importmodule.NewModule(cfg, bus, thumbs, history)
	mod.Start()
	defer mod.Stop()
	manager := mod.Manager()
	store := manager.Store()

	// Snapshot publishes can arrive faster than we consume; a single
	// kick slot plus store.Current keeps the reader simple and lossless.
	notify := make(chan struct{}, 1)
	store.Subscribe(func(pipeline.StoreSnapshot) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning %s ...\n", root)
	if err := manager.StartScan(uuid.New().String(), filepath.Base(root), root); err != nil {
		return err
	}
	if err := waitForState(ctx, store, notify, pipeline.StateResolved); err != nil {
		manager.CancelScan()
		return err
	}

	snap := store.Current()
	printPlan(snap, conf.Library.DestinationRoot, opts.verbose)

	if opts.dryRun {
		return nil
	}
	toImport, toImportBytes := importableTotals(snap)
	if toImport == 0 {
		fmt.Println("Nothing to import.")
		return nil
	}

	if !opts.assumeYes && !confirm(fmt.Sprintf("Import %d files (%s)?",
		toImport, humanize.Bytes(uint64(toImportBytes)))) {
		fmt.Println("Aborted.")
		return nil
	}

	bar := progressbar.DefaultBytes(toImportBytes, "copying")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-notify:
			case <-ticker.C:
			}
			_ = bar.Set64(store.Current().Progress.ImportedBytes)
		}
	}()

	started := time.Now()
	outcome, err := manager.Import(ctx)
	close(done)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	printOutcome(outcome, store.Current(), time.Since(started))
	if outcome.Cancelled {
		return fmt.Errorf("import cancelled")
	}
	if outcome.Failed > 0 {
		return fmt.Errorf("%d files failed to import", outcome.Failed)
	}
	return nil
}

// waitForState blocks until the store reaches target, the pipeline falls
// back to ready (scan cancelled or volume gone), or ctx is cancelled.
func waitForState(ctx context.Context, store *pipeline.FileStore, notify <-chan struct{}, target pipeline.State) error {
	for {
		switch store.Current().State {
		case target:
			return nil
		case pipeline.StateReady:
			return fmt.Errorf("scan did not complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func printPlan(snap pipeline.StoreSnapshot, destRoot string, verbose bool) {
	counts := map[pipeline.Status]int{}
	var totalBytes int64
	for _, f := range snap.Files {
		counts[f.Status]++
		if f.Importable() {
			totalBytes += f.Size
		}
	}

	fmt.Printf("Found %d media files on the volume.\n", len(snap.Files))
	fmt.Printf("  to import:      %d (%s)\n", counts[pipeline.StatusWaiting],
		humanize.Bytes(uint64(totalBytes)))
	if n := counts[pipeline.StatusPreExisting]; n > 0 {
		fmt.Printf("  already in lib: %d\n", n)
	}
	if n := counts[pipeline.StatusDuplicateInSource]; n > 0 {
		fmt.Printf("  duplicates:     %d\n", n)
	}
	fmt.Printf("  destination:    %s\n", destRoot)

	for _, w := range snap.Warnings {
		fmt.Printf("  warning: %s: %v\n", w.Path, w.Err)
	}

	if verbose {
		fmt.Println()
		for _, f := range snap.Files {
			switch f.Status {
			case pipeline.StatusWaiting:
				fmt.Printf("  %s -> %s\n", f.SourcePath, f.DestPath)
			default:
				fmt.Printf("  %s [%s]\n", f.SourcePath, f.Status)
			}
		}
	}
}

func printOutcome(outcome pipeline.Outcome, snap pipeline.StoreSnapshot, took time.Duration) {
	var imported int64
	for _, f := range snap.Files {
		if f.Status == pipeline.StatusImported {
			imported += f.Size
		}
	}

	switch {
	case outcome.Cancelled:
		fmt.Printf("Cancelled after %d files (%s); completed copies were kept.\n",
			outcome.Imported, humanize.Bytes(uint64(imported)))
	case outcome.Failed > 0:
		fmt.Printf("Imported %d files (%s) in %s; %d failed:\n",
			outcome.Imported, humanize.Bytes(uint64(imported)),
			took.Round(time.Second), outcome.Failed)
		for _, f := range snap.Files {
			if f.Status == pipeline.StatusFailed {
				fmt.Printf("  %s: %v\n", f.SourcePath, f.Err)
			}
		}
	default:
		fmt.Printf("Imported %d files (%s) in %s.\n",
			outcome.Imported, humanize.Bytes(uint64(imported)), took.Round(time.Second))
	}
}

func importableTotals(snap pipeline.StoreSnapshot) (int, int64) {
	var files int
	var bytes int64
	for _, f := range snap.Files {
		if f.Importable() {
			files++
			bytes += f.Size
		}
	}
	return files, bytes
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
