package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pathembed/internal/adapter/archive"
	"pathembed/internal/adapter/tabular"
	"pathembed/internal/analysis"
)

var (
	correlateEmbeddings string
	correlateMember     string
	correlateLabels     string
	correlateColumn     int
	correlateMetric     string
	correlateLabeled    bool
	correlateJSON       bool
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Correlate per-label centroids of an embedding matrix",
	Long: `Read an embedding matrix and a label table, average the embeddings of each
label and print the label by label correlation matrix of those centroids.

The embeddings are either a bare numeric TSV (one row per record) or, with
--labeled, the output of 'pathembed embed' with identifiers in the first column.
Zipped sources are read from the member matching --member.

Examples:
  pathembed correlate
  pathembed correlate --metric spearman --json
  pathembed correlate --embeddings embeddings_with_identifiers.tsv --labeled --labels types.tsv`,
	Args: cobra.NoArgs,
	RunE: runCorrelate,
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().StringVar(&correlateEmbeddings, "embeddings", "", "embedding TSV or zip, URL or path (default from config)")
	correlateCmd.Flags().StringVar(&correlateMember, "member", "", "member of a zipped embeddings source (default from config)")
	correlateCmd.Flags().StringVar(&correlateLabels, "labels", "", "label TSV with a header row, URL or path (default from config)")
	correlateCmd.Flags().IntVar(&correlateColumn, "label-column", -1, "zero-based label column (default from config)")
	correlateCmd.Flags().StringVar(&correlateMetric, "metric", "", "pearson or spearman (default from config)")
	correlateCmd.Flags().BoolVar(&correlateLabeled, "labeled", false, "embeddings carry identifiers in the first column")
	correlateCmd.Flags().BoolVar(&correlateJSON, "json", false, "output as JSON")
}

type correlationOutput struct {
	Metric string       `json:"metric"`
	Labels []string     `json:"labels"`
	Sizes  []int        `json:"sizes"`
	Matrix [][]*float64 `json:"matrix"`
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	acfg := GetConfig().Analysis
	if correlateEmbeddings != "" {
		acfg.EmbeddingsURL = correlateEmbeddings
	}
	if correlateMember != "" {
		acfg.EmbeddingsMember = correlateMember
	}
	if correlateLabels != "" {
		acfg.LabelsURL = correlateLabels
	}
	if correlateColumn >= 0 {
		acfg.LabelColumn = correlateColumn
	}
	if correlateMetric != "" {
		acfg.Metric = correlateMetric
	}

	metric, err := analysis.ParseMetric(acfg.Metric)
	if err != nil {
		return err
	}

	src := GetConfig().Source
	fetcher := archive.NewFetcher(src.Timeout, src.MaxBytes, GetLogger())
	ctx := cmd.Context()

	raw, err := loadText(ctx, fetcher, acfg.EmbeddingsURL, archive.Member(acfg.EmbeddingsMember))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	var vectors [][]float64
	if correlateLabeled {
		_, vectors, err = tabular.ParseLabeled(raw)
	} else {
		vectors, err = tabular.ParseMatrix(raw, false)
	}
	if err != nil {
		return fmt.Errorf("failed to parse embeddings: %w", err)
	}

	rawLabels, err := loadText(ctx, fetcher, acfg.LabelsURL, archive.Suffix(".tsv"))
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	labels, err := tabular.ParseColumn(rawLabels, acfg.LabelColumn, true)
	if err != nil {
		return fmt.Errorf("failed to parse labels: %w", err)
	}

	groups, err := analysis.GroupMeans(vectors, labels)
	if err != nil {
		return err
	}
	names, matrix, err := analysis.GroupMatrix(groups, metric)
	if err != nil {
		return err
	}

	GetLogger().Info("correlated centroids",
		"records", len(vectors),
		"labels", len(names),
		"metric", metric)

	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = g.Size
	}

	out := cmd.OutOrStdout()
	if correlateJSON {
		return writeCorrelationJSON(out, correlationOutput{
			Metric: string(metric),
			Labels: names,
			Sizes:  sizes,
		}, matrix)
	}
	return writeCorrelationTable(out, names, sizes, matrix)
}

// loadText reads a plain text source, or the member of a zip source that
// matches member.
func loadText(ctx context.Context, fetcher *archive.Fetcher, source string, member archive.MemberPredicate) (string, error) {
	if strings.HasSuffix(strings.ToLower(source), ".zip") {
		return fetcher.FetchMember(ctx, source, member)
	}
	return fetcher.FetchText(ctx, source)
}

func writeCorrelationJSON(w io.Writer, out correlationOutput, matrix [][]float64) error {
	// NaN has no JSON encoding; constant centroids are reported as null.
	out.Matrix = make([][]*float64, len(matrix))
	for i, row := range matrix {
		out.Matrix[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				out.Matrix[i][j] = &row[j]
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCorrelationTable(w io.Writer, labels []string, sizes []int, matrix [][]float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprint(tw, "\t")
	for _, l := range labels {
		fmt.Fprintf(tw, "%s\t", l)
	}
	fmt.Fprintln(tw)

	for i, row := range matrix {
		fmt.Fprintf(tw, "%s (%d)\t", labels[i], sizes[i])
		for _, v := range row {
			fmt.Fprintf(tw, "%.4f\t", v)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
