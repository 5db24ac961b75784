package application

import "strings"

// classifierRule maps known engine error phrases to a user-actionable
// rewrite. Matching is first-match over the lower-cased raw message.
type classifierRule struct {
	phrases []string
	rewrite string
}

// classifierRules is ordered. Memory-related phrases come first: a memory
// failure can cascade into secondary symptoms (a coordinate-database error,
// a truncated translation) that would otherwise mask the root cause.
var classifierRules = []classifierRule{
	{
		phrases: []string{"out of memory", "memory limit", "cannot allocate", "allocation failed", "bad_alloc"},
		rewrite: "the conversion ran out of memory; convert a smaller dataset or reduce the field list",
	},
	{
		phrases: []string{"proj.db", "proj database", "proj_create", "unable to open the proj"},
		rewrite: "the coordinate reference database could not be read; re-enter the CRS as a full definition and retry",
	},
	{
		phrases: []string{"terminating translation prematurely"},
		rewrite: "some features failed to translate and the run stopped early; enable skip-failures to convert the remainder",
	},
	{
		phrases: []string{"not recognized as a supported file format", "not recognized as being in a supported file format"},
		rewrite: "the input was not recognized; verify the file and the selected input format",
	},
	{
		phrases: []string{"failed to reproject", "reprojection failed", "cannot find coordinate operations", "no transformation found"},
		rewrite: "reprojection between the chosen coordinate systems failed; check the source and target CRS",
	},
	{
		phrases: []string{"invalid geometry", "topologyexception", "self-intersection", "not valid"},
		rewrite: "the dataset contains invalid geometry; enable make-valid, or skip-failures to drop broken features",
	},
	{
		phrases: []string{"sql expression parsing error", "failed to parse where", "incorrect syntax"},
		rewrite: "the WHERE filter could not be parsed; check the expression syntax",
	},
	{
		phrases: []string{"field not found", "no such field", "not found in layer definition"},
		rewrite: "a requested field does not exist in the source layer; check the field list",
	},
	{
		phrases: []string{"couldn't fetch requested layer", "layer not found", "cannot find layer"},
		rewrite: "the requested layer does not exist in the source dataset; check the layer name",
	},
	{
		phrases: []string{"no features found", "empty output", "no feature to write"},
		rewrite: "the conversion produced no features; the filters may exclude everything",
	},
	{
		phrases: []string{"mixed geometry", "geometry type mismatch", "non-uniform geometry"},
		rewrite: "the layer mixes geometry types; set a geometry-type filter or enable explode-collections",
	},
	{
		phrases: []string{"z dimension", "2.5d", "measured geometry", "coordinate dimension"},
		rewrite: "the output format cannot carry the Z dimension; disable keep-Z",
	},
}

// Classifier rewrites raw engine error text into actionable categories.
type Classifier struct{}

// NewClassifier creates an error classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify matches the lower-cased message against the ordered rule set and
// returns the rewritten message prefixed by the raw message's leading token.
// Messages matching no rule pass through unchanged.
func (c *Classifier) Classify(raw string) string {
	lower := strings.ToLower(raw)
	for _, rule := range classifierRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				if token := leadingToken(raw); token != "" {
					return token + ": " + rule.rewrite
				}
				return rule.rewrite
			}
		}
	}
	return raw
}

// leadingToken returns the first whitespace-delimited token of the raw
// message, with any trailing colon stripped.
func leadingToken(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	token := trimmed
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		token = trimmed[:i]
	}
	return strings.TrimSuffix(token, ":")
}
