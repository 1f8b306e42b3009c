package cli

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pathembed/config"
	"pathembed/internal/adapter/export"
	"pathembed/internal/adapter/store"
	"pathembed/internal/domain"
)

var cacheDumpOut string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the local embedding cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many embeddings are cached and whether they are current",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached embedding",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write cached embeddings as TSV, ordered by record index",
	Long: `Write every cached embedding as one TSV row: the record index followed by
the vector. Rows are sorted by index regardless of backend.`,
	Args: cobra.NoArgs,
	RunE: runCacheDump,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheDumpCmd)
	cacheDumpCmd.Flags().StringVarP(&cacheDumpOut, "out", "o", "-", "output file, - for stdout")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	c, err := store.Open(cfg.Cache, GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer c.Close()

	n, err := c.Count()
	if err != nil {
		return err
	}
	stale, err := store.CheckFingerprint(c, config.Fingerprint(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend:     %s\n", cfg.Cache.Backend)
	fmt.Fprintf(out, "Entries:     %d\n", n)
	fmt.Fprintf(out, "Fingerprint: %s\n", stale.Stored)
	if stale.Stale {
		fmt.Fprintf(out, "Status:      stale (%s)\n", stale.Reason)
	} else {
		fmt.Fprintf(out, "Status:      current\n")
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := store.Open(GetConfig().Cache, GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer c.Close()

	n, err := c.Count()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached embeddings\n", n)
	return nil
}

func runCacheDump(cmd *cobra.Command, args []string) error {
	c, err := store.Open(GetConfig().Cache, GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer c.Close()

	entries, err := store.Ordered(c)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	embs := make([]domain.Embedding, len(entries))
	for i, e := range entries {
		ids[i] = strconv.Itoa(e.ID)
		embs[i] = e.Data
	}

	var buf bytes.Buffer
	rows, err := export.WriteTSV(&buf, ids, embs)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), cacheDumpOut, buf.Bytes()); err != nil {
		return err
	}
	if cacheDumpOut != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", rows, cacheDumpOut)
	}
	return nil
}
