package types

// Combinator joins the children of a group node.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Comparison is the operator applied between a resolved operand and the
// configured value(s) of a leaf node.
type Comparison string

const (
	CmpGreaterThan        Comparison = "greater_than"
	CmpGreaterThanOrEqual Comparison = "greater_than_or_equal"
	CmpLessThan           Comparison = "less_than"
	CmpLessThanOrEqual    Comparison = "less_than_or_equal"
	CmpEqualTo            Comparison = "equal_to"
	CmpNotEqualTo         Comparison = "not_equal_to"
	CmpAbove              Comparison = "above"
	CmpBelow              Comparison = "below"
	CmpBetween            Comparison = "between"
)

// DecisionNode is a tagged variant: a leaf carries a recipe comparison, a
// group carries a combinator plus children. A node is a group when it has a
// combinator or children; the tree is acyclic by construction (there is no
// back-reference field). YesPath/NoPath hold the actions the branch result
// selects; the engine consumes the paths of the automation's root node.
type DecisionNode struct {
	// Leaf fields.
	Recipe   string     `json:"recipe,omitempty"`
	Field    string     `json:"field,omitempty"`
	Operator Comparison `json:"operator,omitempty"`
	Value    float64    `json:"value,omitempty"`
	Value2   float64    `json:"value2,omitempty"`

	// Group fields.
	Combinator Combinator      `json:"combinator,omitempty"`
	Children   []*DecisionNode `json:"children,omitempty"`

	YesPath []Action `json:"yes_path,omitempty"`
	NoPath  []Action `json:"no_path,omitempty"`
}

// IsGroup reports whether the node is a group variant.
func (n *DecisionNode) IsGroup() bool {
	return n != nil && (n.Combinator != "" || len(n.Children) > 0)
}
