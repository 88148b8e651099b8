// Package pipeline provides the heatmap pipeline shared by the CLI and the
// HTTP service.
//
// # Architecture
//
// A request runs these stages in order, synchronously:
//
//  1. Load: read the matrix file (pkg/loader)
//  2. Select: optionally rank rows by sum and keep the top percent
//  3. Cluster: leaf-order rows and columns independently (pkg/cluster)
//  4. Layout: reorder the matrix and build the payload, with dendrograms when
//     requested (pkg/heatmap, pkg/colorscale)
//  5. Render: write the report directory (pkg/report)
//
// Parameters are validated once, before the load stage. A clustering failure
// on either axis is recoverable: the axis keeps its original order, a warning
// is recorded, and dendrograms are disabled for the request. Options.Strict
// turns that into a hard error instead.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	runner.ScratchDir = "/tmp/scratch"
//	opts, unknown, err := pipeline.ParseParams(params)
//	if err != nil {
//	    return err
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Dir)
package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/clustermap/pkg/cache"
	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/heatmap"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultTopPercent keeps every row.
	DefaultTopPercent = 100.0

	// DefaultDistMetric is the distance metric used when none is given.
	DefaultDistMetric = cluster.MetricEuclidean

	// DefaultLinkageMethod is the linkage method used when none is given.
	DefaultLinkageMethod = cluster.MethodWard
)

// Parameter keys accepted by ParseParams.
const (
	ParamTSVFilePath   = "tsv_file_path"
	ParamClusterData   = "cluster_data"
	ParamSortBySum     = "sort_by_sum"
	ParamTopPercent    = "top_percent"
	ParamCenteredBy    = "centered_by"
	ParamDistMetric    = "dist_metric"
	ParamLinkageMethod = "linkage_method"
	ParamDendrogram    = "dendrogram"
	ParamStrict        = "strict"
	ParamTitle         = "title"
	ParamSummary       = "summary"
)

// KnownParams is the set of recognized parameter keys.
var KnownParams = map[string]bool{
	ParamTSVFilePath:   true,
	ParamClusterData:   true,
	ParamSortBySum:     true,
	ParamTopPercent:    true,
	ParamCenteredBy:    true,
	ParamDistMetric:    true,
	ParamLinkageMethod: true,
	ParamDendrogram:    true,
	ParamStrict:        true,
	ParamTitle:         true,
	ParamSummary:       true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one heatmap request.
type Options struct {
	TSVFilePath string `json:"tsv_file_path"`

	// SkipCluster disables clustering (cluster_data=false). The zero value
	// clusters both axes.
	SkipCluster bool     `json:"skip_cluster,omitempty"`
	SortBySum   bool     `json:"sort_by_sum,omitempty"`
	TopPercent  float64  `json:"top_percent,omitempty"`
	CenteredBy  *float64 `json:"centered_by,omitempty"`

	// Metric and method names are passed to the orderer verbatim. Unknown
	// names surface as a clustering failure of the affected axis.
	DistMetric    string `json:"dist_metric,omitempty"`
	LinkageMethod string `json:"linkage_method,omitempty"`

	Dendrogram bool `json:"dendrogram,omitempty"`
	// Strict makes clustering failures fatal instead of degrading the report.
	Strict bool `json:"strict,omitempty"`

	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Dir is the report directory. It is empty when the run stopped at the
	// payload (Runner.Build).
	Dir string

	// Payload is the render-ready heatmap.
	Payload heatmap.Payload

	// Warnings lists recoverable problems, such as an axis that could not be
	// clustered.
	Warnings []string

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	InputRows   int
	InputCols   int
	Rows        int
	Cols        int
	LoadTime    time.Duration
	SelectTime  time.Duration
	ClusterTime time.Duration
	LayoutTime  time.Duration
	RenderTime  time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	PayloadHit bool // Whether the payload came from cache
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.TSVFilePath == "" {
		return errors.New(errors.ErrCodeMissingParameter, "Required keys %s not in supplied parameters", ParamTSVFilePath)
	}
	if err := errors.ValidateFilePath(o.TSVFilePath); err != nil {
		return err
	}
	if o.TopPercent == 0 {
		o.TopPercent = DefaultTopPercent
	}
	if err := errors.ValidatePercent(o.TopPercent); err != nil {
		return err
	}
	if o.CenteredBy != nil {
		if err := errors.ValidateCenter(*o.CenteredBy); err != nil {
			return err
		}
	}
	if o.DistMetric == "" {
		o.DistMetric = DefaultDistMetric
	}
	if o.LinkageMethod == "" {
		o.LinkageMethod = DefaultLinkageMethod
	}
	o.validated = true
	return nil
}

// ShouldCluster reports whether rows and columns are reordered by clustering.
func (o *Options) ShouldCluster() bool {
	return !o.SkipCluster
}

// ShouldSelect reports whether the top-fraction selector runs.
func (o *Options) ShouldSelect() bool {
	return o.SortBySum || o.TopPercent < DefaultTopPercent
}

// PayloadKeyOpts returns cache key options for the payload.
func (o *Options) PayloadKeyOpts() cache.PayloadKeyOpts {
	return cache.PayloadKeyOpts{
		Cluster:    o.ShouldCluster(),
		SortBySum:  o.SortBySum,
		TopPercent: o.TopPercent,
		CenteredBy: o.CenteredBy,
		Metric:     o.DistMetric,
		Method:     o.LinkageMethod,
		Dendrogram: o.Dendrogram,
	}
}

// =============================================================================
// Parameter Parsing
// =============================================================================

// ParseParams converts a loosely typed request map into Options. Numbers may
// arrive as JSON numbers or numeric strings, and booleans additionally as 0/1.
// Unrecognized keys are returned sorted so the caller can warn about them.
// An absent or empty centered_by means no center.
func ParseParams(params map[string]any) (Options, []string, error) {
	var unknown []string
	for k := range params {
		if !KnownParams[k] {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)

	var o Options
	var err error

	if o.TSVFilePath, err = stringParam(params, ParamTSVFilePath); err != nil {
		return Options{}, unknown, err
	}
	if o.TSVFilePath == "" {
		return Options{}, unknown, errors.New(errors.ErrCodeMissingParameter,
			"Required keys %s not in supplied parameters", ParamTSVFilePath)
	}

	clusterData := true
	if err := boolParam(params, ParamClusterData, &clusterData); err != nil {
		return Options{}, unknown, err
	}
	o.SkipCluster = !clusterData

	for key, dst := range map[string]*bool{
		ParamSortBySum:  &o.SortBySum,
		ParamDendrogram: &o.Dendrogram,
		ParamStrict:     &o.Strict,
	} {
		if err := boolParam(params, key, dst); err != nil {
			return Options{}, unknown, err
		}
	}

	o.TopPercent = DefaultTopPercent
	if v, ok, err := numberParam(params, ParamTopPercent); err != nil {
		return Options{}, unknown, err
	} else if ok {
		if err := errors.ValidatePercent(v); err != nil {
			return Options{}, unknown, err
		}
		o.TopPercent = v
	}

	if v, ok, err := numberParam(params, ParamCenteredBy); err != nil {
		return Options{}, unknown, err
	} else if ok {
		if err := errors.ValidateCenter(v); err != nil {
			return Options{}, unknown, err
		}
		o.CenteredBy = &v
	}

	for key, dst := range map[string]*string{
		ParamDistMetric:    &o.DistMetric,
		ParamLinkageMethod: &o.LinkageMethod,
		ParamTitle:         &o.Title,
		ParamSummary:       &o.Summary,
	} {
		if *dst, err = stringParam(params, key); err != nil {
			return Options{}, unknown, err
		}
	}

	if err := o.ValidateAndSetDefaults(); err != nil {
		return Options{}, unknown, err
	}
	return o, unknown, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	switch v := params[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", errors.New(errors.ErrCodeInvalidParameter, "%s must be a string, got %T", key, v)
	}
}

func boolParam(params map[string]any, key string, dst *bool) error {
	raw, present := params[key]
	if !present || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case bool:
		*dst = v
		return nil
	case float64:
		if v == 0 || v == 1 {
			*dst = v == 1
			return nil
		}
	case int:
		if v == 0 || v == 1 {
			*dst = v == 1
			return nil
		}
	case json.Number:
		if s := v.String(); s == "0" || s == "1" {
			*dst = s == "1"
			return nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			*dst = true
			return nil
		case "0", "false", "no":
			*dst = false
			return nil
		}
	}
	return errors.New(errors.ErrCodeInvalidParameter, "%s must be a boolean, got %v", key, raw)
}

// numberParam reports the value of key and whether it was set.
func numberParam(params map[string]any, key string) (float64, bool, error) {
	var f float64
	switch v := params[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false, errors.New(errors.ErrCodeInvalidParameter, "%s must be numeric, got %q", key, v.String())
		}
		f = n
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, errors.New(errors.ErrCodeInvalidParameter, "%s must be numeric, got %q", key, v)
		}
		f = n
	default:
		return 0, false, errors.New(errors.ErrCodeInvalidParameter, "%s must be numeric, got %T", key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, errors.New(errors.ErrCodeInvalidParameter, "%s must be finite", key)
	}
	return f, true, nil
}

// String summarizes the options for logs.
func (o Options) String() string {
	center := "none"
	if o.CenteredBy != nil {
		center = strconv.FormatFloat(*o.CenteredBy, 'g', -1, 64)
	}
	return fmt.Sprintf("cluster=%t metric=%s method=%s top=%g sort=%t center=%s dendrogram=%t",
		o.ShouldCluster(), o.DistMetric, o.LinkageMethod, o.TopPercent, o.SortBySum, center, o.Dendrogram)
}
