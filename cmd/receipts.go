package cmd

import (
	"fmt"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
	"github.com/spf13/cobra"
)

var receiptsSweepFlags struct {
	Grace time.Duration
}

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Manage stored receipt files",
}

var receiptsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete receipt files no record refers to",
	Long:  `Delete stored receipt files that are not referenced by any record and are older than the grace period.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		store, err := openStorage(cfg.Receipts)
		if err != nil {
			return fmt.Errorf("failed to initialize receipt storage: %w", err)
		}

		grace := cfg.Receipts.SweepGrace
		if cmd.Flags().Changed("grace") {
			grace = receiptsSweepFlags.Grace
		}

		result, err := receipts.NewGateway(store, db, nil).Sweep(cmd.Context(), grace)
		if err != nil {
			return err
		}
		fmt.Printf("Scanned %d files, removed %d orphaned receipts (%s)\n",
			result.Scanned, result.Removed, formatBytes(result.Bytes))
		return nil
	},
}

var receiptsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show receipt storage statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		store, err := openStorage(cfg.Receipts)
		if err != nil {
			return fmt.Errorf("failed to initialize receipt storage: %w", err)
		}

		records, err := db.ListRecords(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		referenced, err := db.ListReceiptFilenames(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list receipts: %w", err)
		}
		objects, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list stored receipts: %w", err)
		}

		var total int64
		for _, o := range objects {
			total += o.Size
		}

		fmt.Println("Receipt Statistics:")
		fmt.Printf("Records: %d\n", len(records))
		fmt.Printf("Records with receipt: %d\n", len(referenced))
		fmt.Printf("Stored files: %d\n", len(objects))
		fmt.Printf("Stored size: %s\n", formatBytes(total))
		return nil
	},
}

func formatBytes(n int64) string {
	u, err := safecast.Convert[uint64](n)
	if err != nil {
		return "unknown"
	}
	return humanize.IBytes(u)
}

func init() {
	receiptsSweepCmd.Flags().DurationVar(&receiptsSweepFlags.Grace, "grace", time.Hour, "Only delete files older than this")

	receiptsCmd.AddCommand(receiptsSweepCmd, receiptsStatsCmd)
	rootCmd.AddCommand(receiptsCmd)
}
