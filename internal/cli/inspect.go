package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pathembed/internal/adapter/archive"
	"pathembed/internal/adapter/tabular"
	"pathembed/internal/domain"
)

var (
	inspectSource string
	inspectMember string
	inspectJSON   bool
	inspectLimit  int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the archive members and parsed records of a source",
	Long: `Fetch the source archive without embedding anything and report its members,
the number of parsed records, skipped rows and the first record.

Examples:
  pathembed inspect
  pathembed inspect --source ./TCGA_Reports.csv.zip --json`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectSource, "source", "", "archive URL or local path (default from config)")
	inspectCmd.Flags().StringVar(&inspectMember, "member", "", "glob selecting the reports member (default from config)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 10, "skipped rows to list")
}

type inspectReport struct {
	Source  string              `json:"source"`
	Members []string            `json:"members"`
	Member  string              `json:"member"`
	Rows    int                 `json:"rows"`
	Records int                 `json:"records"`
	Skipped []domain.SkippedRow `json:"skipped"`
	First   *domain.Record      `json:"first,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if inspectSource != "" {
		cfg.Source.URL = inspectSource
	}
	if inspectMember != "" {
		cfg.Source.Member = inspectMember
	}

	fetcher := archive.NewFetcher(cfg.Source.Timeout, cfg.Source.MaxBytes, GetLogger())
	data, err := fetcher.Fetch(cmd.Context(), cfg.Source.URL)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	members, err := archive.Members(data)
	if err != nil {
		return err
	}
	name, text, err := archive.ExtractMember(data, archive.Glob(cfg.Source.Member))
	if err != nil {
		return err
	}

	parsed, err := tabular.NewReportParser(cfg.Source.Sentinel, cfg.Source.Reindex).Parse(text)
	if err != nil {
		return err
	}

	report := inspectReport{
		Source:  cfg.Source.URL,
		Members: members,
		Member:  name,
		Rows:    parsed.Rows,
		Records: len(parsed.Records),
		Skipped: parsed.Skipped,
	}
	if len(parsed.Records) > 0 {
		report.First = &parsed.Records[0]
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Source:  %s\n", report.Source)
	fmt.Fprintf(out, "Members:\n")
	for _, m := range members {
		marker := " "
		if m == name {
			marker = "*"
		}
		fmt.Fprintf(out, "  %s %s\n", marker, m)
	}
	fmt.Fprintf(out, "Rows:    %d\n", report.Rows)
	fmt.Fprintf(out, "Records: %d\n", report.Records)
	fmt.Fprintf(out, "Skipped: %d\n", len(report.Skipped))
	for i, s := range report.Skipped {
		if i == inspectLimit {
			fmt.Fprintf(out, "  ... %d more\n", len(report.Skipped)-i)
			break
		}
		fmt.Fprintf(out, "  line %d: %s\n", s.Line, s.Reason)
	}
	if report.First != nil {
		fmt.Fprintf(out, "\nFirst record:\n")
		fmt.Fprintf(out, "  index:      %d\n", report.First.Index)
		fmt.Fprintf(out, "  identifier: %s\n", report.First.Identifier)
		fmt.Fprintf(out, "  text:       %s\n", truncate(report.First.Text, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
