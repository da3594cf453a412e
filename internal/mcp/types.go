package mcp

// --- Tool Input Arguments ---

type ReduceEmbeddingsArgs struct {
	Embeddings  [][]float64 `json:"embeddings" jsonschema:"Embedding vectors to reduce, one row per sample. All rows must have the same length."`
	NComponents *int        `json:"n_components,omitempty" jsonschema:"Target dimensionality. Defaults to the server default (256) and must not exceed min(n_samples, n_features)."`
}

type ExplainVarianceArgs struct {
	Embeddings  [][]float64 `json:"embeddings" jsonschema:"Embedding vectors to analyze, one row per sample."`
	NComponents *int        `json:"n_components,omitempty" jsonschema:"Number of principal axes to report. Defaults to min(n_samples, n_features)."`
}

// --- Tool Output Results ---

type ReduceEmbeddingsResult struct {
	Reduced                [][]float64 `json:"reduced" jsonschema:"Reduced vectors, n_samples rows of n_components values"`
	NSamples               int         `json:"n_samples"`
	NComponents            int         `json:"n_components"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio" jsonschema:"Fraction of total variance carried by each kept axis"`
}

type ExplainVarianceResult struct {
	NSamples               int       `json:"n_samples"`
	NFeatures              int       `json:"n_features"`
	SingularValues         []float64 `json:"singular_values"`
	ExplainedVariance      []float64 `json:"explained_variance"`
	ExplainedVarianceRatio []float64 `json:"explained_variance_ratio"`
	TotalRatio             float64   `json:"total_ratio" jsonschema:"Fraction of variance retained by all reported axes"`
}
