package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataQualityConfig holds the global rules, optional per-table overrides and
// the declared column types per table.
type DataQualityConfig struct {
	QualityRules `yaml:",inline"`
	Dtypes       map[string]map[string]string `yaml:"dtypes"`
	Tables       map[string]QualityRules      `yaml:"tables"`
}

// QualityRules are the normalization rules applied to one table.
type QualityRules struct {
	DropDuplicates bool                    `yaml:"drop_duplicates"`
	NotNull        []string                `yaml:"not_null"`
	FillNA         map[string]FillStrategy `yaml:"fill_na"`
}

// RulesFor returns the rules for a table: its override when one exists,
// otherwise the global rules.
func (d DataQualityConfig) RulesFor(tableName string) QualityRules {
	if r, ok := d.Tables[tableName]; ok {
		return r
	}
	return d.QualityRules
}

// FillKind enumerates the missing-value strategies.
type FillKind int

const (
	FillLiteral FillKind = iota
	FillMean
	FillMedian
	FillMode
)

func (k FillKind) String() string {
	switch k {
	case FillMean:
		return "mean"
	case FillMedian:
		return "median"
	case FillMode:
		return "mode"
	default:
		return "literal"
	}
}

// FillStrategy is a closed variant: a strategy kind plus, for FillLiteral,
// the value to fill with.
//
// In YAML a bare scalar is either one of the keywords mean/median/mode or a
// literal fill value. The mapping form {strategy: ..., value: ...} is strict
// and rejects unknown strategy names.
type FillStrategy struct {
	Kind  FillKind
	Value any
}

// Literal returns a literal fill strategy.
func Literal(v any) FillStrategy {
	return FillStrategy{Kind: FillLiteral, Value: v}
}

func (f FillStrategy) String() string {
	if f.Kind == FillLiteral {
		return fmt.Sprintf("literal(%v)", f.Value)
	}
	return f.Kind.String()
}

func parseFillKind(s string) (FillKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean":
		return FillMean, true
	case "median":
		return FillMedian, true
	case "mode":
		return FillMode, true
	case "literal", "value":
		return FillLiteral, true
	}
	return FillLiteral, false
}

func (f *FillStrategy) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!str" {
			if k, ok := parseFillKind(node.Value); ok && k != FillLiteral {
				*f = FillStrategy{Kind: k}
				return nil
			}
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		*f = Literal(normalizeLiteral(v))
		return nil
	case yaml.MappingNode:
		var raw struct {
			Strategy string `yaml:"strategy"`
			Value    any    `yaml:"value"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		k, ok := parseFillKind(raw.Strategy)
		if !ok {
			return fmt.Errorf("%w: unknown fill strategy %q (line %d)", ErrConfig, raw.Strategy, node.Line)
		}
		if k == FillLiteral && raw.Value == nil {
			return fmt.Errorf("%w: literal fill strategy needs a value (line %d)", ErrConfig, node.Line)
		}
		*f = FillStrategy{Kind: k, Value: normalizeLiteral(raw.Value)}
		return nil
	}
	return fmt.Errorf("%w: fill strategy must be a scalar or mapping (line %d)", ErrConfig, node.Line)
}

// normalizeLiteral maps YAML scalar types onto table cell types.
func normalizeLiteral(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// ResampleRule labels one trend granularity, e.g. weekly -> "W".
type ResampleRule struct {
	Label string
	Rule  string
}

// ResampleRules keeps the YAML mapping order so trend tables come out in the
// order they were configured.
type ResampleRules []ResampleRule

func (r *ResampleRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: metrics.resample must be a mapping (line %d)", ErrConfig, node.Line)
	}
	out := make(ResampleRules, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, ResampleRule{
			Label: node.Content[i].Value,
			Rule:  node.Content[i+1].Value,
		})
	}
	*r = out
	return nil
}
