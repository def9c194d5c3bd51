package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/database"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit     int
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past import sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(limit, sessionID)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of sessions to show")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "",
		"show per-file records for one session")
	return cmd
}

func runHistory(limit int, sessionID string) error {
	cfg := config.GetManager()
	if err := cfg.Load(cfgPath); err != nil {
		return err
	}

	store, err := database.Open(cfg.Get().History.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if sessionID != "" {
		return printSessionRecords(store, sessionID)
	}

	sessions, err := store.RecentSessions(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No import sessions recorded yet.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-9s %-16s %4d imported (%s), %d failed, %d dup, %d pre-existing\n",
			s.StartedAt.Format("2006-01-02 15:04"), s.Outcome, s.VolumeLabel,
			s.FilesImported, humanize.Bytes(uint64(s.BytesImported)),
			s.FilesFailed, s.FilesDuplicate, s.FilesPreExist)
		fmt.Printf("  session %s -> %s\n", s.ID, s.DestinationRoot)
	}
	return nil
}

func printSessionRecords(store *database.Store, sessionID string) error {
	records, err := store.SessionRecords(sessionID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records for session %s", sessionID)
	}

	for _, r := range records {
		switch r.Status {
		case "imported":
			fmt.Printf("imported   %s -> %s (%s)\n", r.SourcePath, r.DestPath,
				humanize.Bytes(uint64(r.Size)))
		case "failed":
			fmt.Printf("failed     %s: %s\n", r.SourcePath, r.Error)
		default:
			fmt.Printf("%-10s %s\n", r.Status, r.SourcePath)
		}
	}
	return nil
}
