package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sanonone/embedreduce/pkg/client"
	"github.com/sanonone/embedreduce/pkg/pca"
	"github.com/sanonone/embedreduce/pkg/reduce"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var (
	reduceInput      string
	reduceComponents int
	reduceURL        string
	reduceStats      bool
)

var reduceCmd = &cobra.Command{
	Use:   "reduce",
	Short: "Reduce a JSON request body locally or against a running server",
	Long: `Read a POST /pca body ({"embeddings": [[...]], "n_components": k}) from a
file or stdin and print the reduced vectors as JSON.

With --url the body is sent to a running server; otherwise the reduction runs
in process with the same validation rules. --stats (local only) adds the
explained variance ratios and the reconstruction RMSE.`,
	Example: `  embedreduce reduce -i batch.json -k 64
  cat batch.json | embedreduce reduce --url http://localhost:8000`,
	Args: cobra.NoArgs,
	RunE: runReduce,
}

func init() {
	reduceCmd.Flags().StringVarP(&reduceInput, "input", "i", "-", "Request body file, - for stdin")
	reduceCmd.Flags().IntVarP(&reduceComponents, "n-components", "k", 0, "Override n_components from the body")
	reduceCmd.Flags().StringVar(&reduceURL, "url", "", "Base URL of a running embedreduce server")
	reduceCmd.Flags().BoolVar(&reduceStats, "stats", false, "Print variance and reconstruction statistics with the vectors")
	rootCmd.AddCommand(reduceCmd)
}

type reduceOutput struct {
	Reduced                [][]float64 `json:"reduced"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
	TotalVarianceRatio     float64     `json:"total_variance_ratio"`
	ReconstructionRMSE     float64     `json:"reconstruction_rmse"`
}

func runReduce(cmd *cobra.Command, args []string) error {
	if reduceStats && reduceURL != "" {
		return withCode(ExitError, "--stats is only available for local reductions")
	}

	data, err := readInput(reduceInput)
	if err != nil {
		return withCode(ExitError, "reading input: %v", err)
	}

	if reduceURL != "" {
		return reduceRemote(cmd, data)
	}
	return reduceLocal(cmd, data)
}

func reduceRemote(cmd *cobra.Command, data []byte) error {
	var req reduce.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return withCode(ExitDataError, "malformed JSON body: %v", err)
	}
	k := 0
	if req.NComponents != nil {
		k = *req.NComponents
	}
	if reduceComponents > 0 {
		k = reduceComponents
	}

	reduced, err := client.New(reduceURL).Reduce(cmd.Context(), req.Embeddings, k)
	if err != nil {
		if _, ok := err.(*client.APIError); ok {
			return withCode(ExitDataError, "%v", err)
		}
		return err
	}
	return outputJSON(cmd.OutOrStdout(), reduced)
}

func reduceLocal(cmd *cobra.Command, data []byte) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reducer, err := reduce.NewService(reduce.Options{
		DefaultComponents: cfg.Reduce.DefaultComponents,
		MaxConcurrent:     1,
	})
	if err != nil {
		return withCode(ExitConfigError, "%v", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return withCode(ExitDataError, "malformed JSON body: %v", err)
	}
	if obj, ok := raw.(map[string]any); ok && reduceComponents > 0 {
		obj["n_components"] = float64(reduceComponents)
	}

	batch, err := reducer.Validator().Validate(raw)
	if err != nil {
		return withCode(ExitDataError, "%v", err)
	}
	res, err := reducer.Reduce(cmd.Context(), batch)
	if err != nil {
		if reduce.KindOf(err) == reduce.KindValidation {
			return withCode(ExitDataError, "%v", err)
		}
		return err
	}

	if !reduceStats {
		return outputJSON(cmd.OutOrStdout(), res.Reduced)
	}

	rmse, err := reconstructionRMSE(res.Model, batch.Matrix, res.Reduced)
	if err != nil {
		return err
	}
	return outputJSON(cmd.OutOrStdout(), reduceOutput{
		Reduced:                res.Reduced,
		ExplainedVarianceRatio: res.Model.ExplainedVarianceRatio,
		TotalVarianceRatio:     res.Model.TotalExplainedVarianceRatio(),
		ReconstructionRMSE:     rmse,
	})
}

// reconstructionRMSE maps reduced back to the input space and compares it with x.
func reconstructionRMSE(m *pca.Model, x *mat.Dense, reduced [][]float64) (float64, error) {
	y, err := pca.FromRows(reduced)
	if err != nil {
		return 0, err
	}
	back, err := m.InverseTransform(y)
	if err != nil {
		return 0, fmt.Errorf("inverse transform: %w", err)
	}
	var diff mat.Dense
	diff.Sub(x, back)
	r, c := diff.Dims()
	return mat.Norm(&diff, 2) / math.Sqrt(float64(r*c)), nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// outputJSON writes a value as compact JSON.
func outputJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
