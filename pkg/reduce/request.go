package reduce

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sanonone/embedreduce/pkg/pca"
	"gonum.org/v1/gonum/mat"
)

// DefaultComponents is the target dimensionality when a request omits n_components.
const DefaultComponents = 256

// Request is the body of POST /pca.
type Request struct {
	Embeddings  [][]float64 `json:"embeddings" jsonschema:"Embedding vectors to reduce, one row per sample. All rows must have the same length."`
	NComponents *int        `json:"n_components,omitempty" jsonschema:"Target dimensionality. Must not exceed min(n_samples, n_features)."`
}

// Batch is a validated request: a rectangular, finite matrix and an in-range target dimensionality.
type Batch struct {
	Matrix      *mat.Dense
	NSamples    int
	NFeatures   int
	NComponents int
}

// RequestSchema describes the request body. Unknown properties are allowed and ignored.
func RequestSchema(defaultComponents int) (*jsonschema.Schema, error) {
	s, err := jsonschema.For[Request](nil)
	if err != nil {
		return nil, fmt.Errorf("inferring request schema: %w", err)
	}
	s.Title = "PCA reduction request"
	s.AdditionalProperties = nil

	emb := s.Properties["embeddings"]
	emb.MinItems = jsonschema.Ptr(1)
	emb.Items.MinItems = jsonschema.Ptr(1)

	nc := s.Properties["n_components"]
	nc.Minimum = jsonschema.Ptr(1.0)
	nc.Default = json.RawMessage(strconv.Itoa(defaultComponents))

	return s, nil
}

// Validator turns request bodies into batches.
type Validator struct {
	schema            *jsonschema.Schema
	resolved          *jsonschema.Resolved
	defaultComponents int
}

// NewValidator builds a validator that applies defaultComponents when n_components is absent.
func NewValidator(defaultComponents int) (*Validator, error) {
	if defaultComponents < 1 {
		return nil, fmt.Errorf("default components must be positive, got %d", defaultComponents)
	}
	s, err := RequestSchema(defaultComponents)
	if err != nil {
		return nil, err
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving request schema: %w", err)
	}
	return &Validator{schema: s, resolved: resolved, defaultComponents: defaultComponents}, nil
}

// Schema returns the request schema used for validation.
func (v *Validator) Schema() *jsonschema.Schema {
	return v.schema
}

// DefaultComponents returns the n_components applied to requests that omit it.
func (v *Validator) DefaultComponents() int {
	return v.defaultComponents
}

// Decode reads a single JSON document from r and validates it.
func (v *Validator) Decode(r io.Reader) (*Batch, error) {
	dec := json.NewDecoder(r)
	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Kind: KindTransport, Message: "request body is empty", Err: err}
		}
		return nil, newError(KindTransport, err, "malformed JSON body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &Error{Kind: KindTransport, Message: "malformed JSON body: unexpected data after the top-level value", Err: err}
	}
	return v.Validate(raw)
}

// Validate checks a decoded JSON value against the request schema and the shape rules.
func (v *Validator) Validate(raw any) (*Batch, error) {
	if err := v.resolved.Validate(raw); err != nil {
		return nil, newError(KindValidation, err, "invalid request")
	}

	obj, _ := raw.(map[string]any)
	rawRows, _ := obj["embeddings"].([]any)
	rows := make([][]float64, len(rawRows))
	for i, rr := range rawRows {
		cells, ok := rr.([]any)
		if !ok {
			return nil, validationErrorf("embeddings[%d] is not an array", i)
		}
		row := make([]float64, len(cells))
		for j, c := range cells {
			f, ok := c.(float64)
			if !ok {
				return nil, validationErrorf("embeddings[%d][%d] is not a number", i, j)
			}
			row[j] = f
		}
		rows[i] = row
	}

	req := Request{Embeddings: rows}
	if nc, ok := obj["n_components"].(float64); ok {
		// Range-check before converting so huge values cannot overflow int.
		if limit := limitOf(rows); nc < 1 || nc > float64(limit) {
			return nil, componentsError(nc, limit)
		}
		k := int(nc)
		req.NComponents = &k
	}
	return v.Build(req)
}

// Build validates an already typed request.
func (v *Validator) Build(req Request) (*Batch, error) {
	n := len(req.Embeddings)
	if n == 0 {
		return nil, validationErrorf("embeddings must contain at least one vector")
	}
	d := len(req.Embeddings[0])
	if d == 0 {
		return nil, validationErrorf("embeddings must not contain empty vectors")
	}
	for i, row := range req.Embeddings {
		if len(row) != d {
			return nil, validationErrorf("embeddings must be rectangular: row %d has %d values, row 0 has %d", i, len(row), d)
		}
		for j, x := range row {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, validationErrorf("embeddings[%d][%d] is not a finite number", i, j)
			}
		}
	}

	k := v.defaultComponents
	if req.NComponents != nil {
		k = *req.NComponents
	}
	if limit := min(n, d); k < 1 || k > limit {
		return nil, componentsError(float64(k), limit)
	}

	m, err := pca.FromRows(req.Embeddings)
	if err != nil {
		return nil, newError(KindValidation, err, "invalid embeddings")
	}
	return &Batch{Matrix: m, NSamples: n, NFeatures: d, NComponents: k}, nil
}

func limitOf(rows [][]float64) int {
	if len(rows) == 0 {
		return 0
	}
	return min(len(rows), len(rows[0]))
}

func componentsError(k float64, limit int) *Error {
	return validationErrorf("n_components=%s must be between 1 and min(n_samples, n_features)=%d",
		strconv.FormatFloat(k, 'g', -1, 64), limit)
}
