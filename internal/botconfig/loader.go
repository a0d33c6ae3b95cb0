package botconfig

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"botkit/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var definitionSchema = jsonschema.MustCompileString("bot-definition.json", schemaJSON)

// Load reads, validates and decodes one bot definition. YAML and JSON are
// both accepted, chosen by extension. Schema validation runs before
// decoding so errors name the offending path in the document.
func Load(path string) (types.BotConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.BotConfig{}, fmt.Errorf("read bot definition: %w", err)
	}
	jsonRaw, err := toJSON(path, raw)
	if err != nil {
		return types.BotConfig{}, err
	}

	var doc any
	if err := json.Unmarshal(jsonRaw, &doc); err != nil {
		return types.BotConfig{}, fmt.Errorf("parse bot definition %s: %w", filepath.Base(path), err)
	}
	if err := definitionSchema.Validate(doc); err != nil {
		return types.BotConfig{}, fmt.Errorf("bot definition %s invalid: %w", filepath.Base(path), err)
	}

	var cfg types.BotConfig
	if err := json.Unmarshal(jsonRaw, &cfg); err != nil {
		return types.BotConfig{}, fmt.Errorf("decode bot definition %s: %w", filepath.Base(path), err)
	}
	if err := validate(&cfg); err != nil {
		return types.BotConfig{}, fmt.Errorf("bot definition %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// toJSON normalizes the document to JSON bytes. YAML documents are decoded
// and re-encoded so one schema covers both formats.
func toJSON(path string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", filepath.Base(path), err)
		}
		return json.Marshal(doc)
	default:
		return raw, nil
	}
}

// validate covers the structural rules the schema cannot express: id
// uniqueness, trigger completeness, and decision tree shape.
func validate(cfg *types.BotConfig) error {
	seen := make(map[string]bool, len(cfg.Automations))
	for i := range cfg.Automations {
		auto := &cfg.Automations[i]
		if seen[auto.ID] {
			return fmt.Errorf("duplicate automation id %q", auto.ID)
		}
		seen[auto.ID] = true
		if err := validateTrigger(auto); err != nil {
			return fmt.Errorf("automation %s: %w", auto.ID, err)
		}
		if err := validateNode(auto.Decision, "decision"); err != nil {
			return fmt.Errorf("automation %s: %w", auto.ID, err)
		}
	}
	return nil
}

func validateTrigger(auto *types.Automation) error {
	switch auto.Trigger.Kind {
	case types.TriggerContinuous:
		return nil
	case types.TriggerScheduled:
		if auto.Trigger.IntervalSec <= 0 {
			return fmt.Errorf("scheduled trigger requires interval_sec")
		}
		return nil
	case types.TriggerEvent:
		if auto.Trigger.Topic == "" {
			return fmt.Errorf("event trigger requires topic")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %q", auto.Trigger.Kind)
	}
}

func validateNode(node *types.DecisionNode, path string) error {
	if node == nil {
		return fmt.Errorf("%s: missing node", path)
	}
	if node.IsGroup() {
		if node.Combinator != types.CombinatorAnd && node.Combinator != types.CombinatorOr {
			return fmt.Errorf("%s: group requires combinator and/or", path)
		}
		if len(node.Children) == 0 {
			return fmt.Errorf("%s: group has no children", path)
		}
		if node.Recipe != "" || node.Operator != "" {
			return fmt.Errorf("%s: node mixes group and leaf fields", path)
		}
		for i, child := range node.Children {
			if err := validateNode(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
			if len(child.YesPath) > 0 || len(child.NoPath) > 0 {
				return fmt.Errorf("%s.children[%d]: action paths belong on the root node only", path, i)
			}
		}
		return nil
	}
	if node.Recipe == "" {
		return fmt.Errorf("%s: leaf requires recipe", path)
	}
	if node.Operator == "" {
		return fmt.Errorf("%s: leaf requires operator", path)
	}
	return nil
}
