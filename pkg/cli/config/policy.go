package config

import (
	"bytes"
	"errors"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

type policyFile struct {
	Events []policyEvent `toml:"events"`
}

type policyEvent struct {
	Action       string   `toml:"action" validate:"required,oneof=push release"`
	Branch       string   `toml:"branch" validate:"required_if=Action push"`
	Mode         string   `toml:"mode" validate:"required,oneof=all blacklist whitelist"`
	Repositories []string `toml:"repositories" validate:"required_unless=Mode all"`
}

// LoadPolicyRules reads the ordered policy rules from a TOML file.
// A missing file yields no rules, which allows every repository, unless required is set.
func LoadPolicyRules(path string, required bool) (model.PolicyRules, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", path))
	}

	return ParsePolicyRules(data)
}

// ParsePolicyRules decodes and validates the [[events]] tables of a policy file
func ParsePolicyRules(data []byte) (model.PolicyRules, error) {
	var file policyFile
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse policy file")
	}

	validate := validator.New()
	rules := make(model.PolicyRules, 0, len(file.Events))
	for i, ev := range file.Events {
		if err := validate.Struct(ev); err != nil {
			return nil, goerr.Wrap(err, "invalid policy rule", goerr.V("index", i))
		}
		rules = append(rules, ev.rule())
	}

	return rules, nil
}

func (x policyEvent) rule() model.PolicyRule {
	rule := model.PolicyRule{Action: model.ReleaseAction()}
	if x.Action == "push" {
		rule.Action = model.PushAction(x.Branch)
	}

	switch x.Mode {
	case "blacklist":
		rule.Repo = model.Blacklist(x.Repositories...)
	case "whitelist":
		rule.Repo = model.Whitelist(x.Repositories...)
	default:
		rule.Repo = model.AllRepositories()
	}
	return rule
}
