package manifest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/shlex"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

const (
	actionCommand = "command"
	actionCopy    = "copy"
)

type rawManifest struct {
	Deploy *[]rawAction `toml:"deploy" yaml:"deploy"`
}

type rawAction struct {
	Action  string    `toml:"action" yaml:"action" validate:"required,oneof=command copy"`
	Command string    `toml:"command" yaml:"command" validate:"required_if=Action command"`
	Args    *[]string `toml:"args" yaml:"args"`
	Src     string    `toml:"src" yaml:"src" validate:"required_if=Action copy"`
	Dest    string    `toml:"dest" yaml:"dest" validate:"required_if=Action copy"`
}

// Loader reads the deployment manifest from the root of a mirror
type Loader struct {
	validate *validator.Validate
}

// New creates a Loader
func New() *Loader {
	return &Loader{validate: validator.New()}
}

// Load reads the first manifest file found in mirrorPath. A missing or malformed manifest wraps model.ErrManifest.
func (l *Loader) Load(ctx context.Context, mirrorPath string) (*model.DeploymentManifest, error) {
	for _, name := range model.ManifestFileNames {
		path := filepath.Join(mirrorPath, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrManifest, "failed to read manifest", goerr.V("path", path), goerr.V("cause", err.Error()))
		}

		actions, err := l.parse(name, data)
		if err != nil {
			return nil, goerr.Wrap(model.ErrManifest, "failed to parse manifest", goerr.V("path", path), goerr.V("cause", err.Error()))
		}

		ctxlog.From(ctx).Debug("Loaded deployment manifest", "path", path, "actions", len(actions))
		return &model.DeploymentManifest{Path: path, Actions: actions}, nil
	}

	return nil, goerr.Wrap(model.ErrManifest, "manifest not found",
		goerr.V("mirror_path", mirrorPath),
		goerr.V("candidates", model.ManifestFileNames),
	)
}

func (l *Loader) parse(name string, data []byte) ([]model.DeploymentAction, error) {
	var raw rawManifest
	switch filepath.Ext(name) {
	case ".toml":
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}

	if raw.Deploy == nil {
		return nil, goerr.New("missing deploy list")
	}

	actions := make([]model.DeploymentAction, 0, len(*raw.Deploy))
	for i, r := range *raw.Deploy {
		action, err := l.convert(r)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid deploy step", goerr.V("index", i))
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (l *Loader) convert(r rawAction) (model.DeploymentAction, error) {
	if err := l.validate.Struct(r); err != nil {
		return nil, err
	}

	switch r.Action {
	case actionCommand:
		if r.Args != nil {
			return model.CommandAction{Program: r.Command, Args: *r.Args}, nil
		}
		// without args the command line is split like a shell would
		words, err := shlex.Split(r.Command)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to split command", goerr.V("command", r.Command))
		}
		if len(words) == 0 {
			return nil, goerr.New("empty command")
		}
		return model.CommandAction{Program: words[0], Args: words[1:]}, nil

	case actionCopy:
		return model.CopyAction{Src: r.Src, Dest: r.Dest}, nil
	}

	return nil, goerr.New("unknown action", goerr.V("action", r.Action))
}
