package usecase

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/otiai10/copy"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

type deployUseCase struct {
	loader interfaces.ManifestLoader
}

// NewDeploy creates the use case executing deployment manifests
func NewDeploy(loader interfaces.ManifestLoader) interfaces.DeployUseCase {
	return &deployUseCase{loader: loader}
}

// Deploy loads the manifest from the job's mirror and runs its actions in order. The first failing
// action stops the run; the result counts the actions that succeeded before it.
func (uc *deployUseCase) Deploy(ctx context.Context, job *model.DeploymentJob) (model.DeployResult, error) {
	logger := ctxlog.From(ctx)

	manifest, err := uc.loader.Load(ctx, job.MirrorPath)
	if err != nil {
		return model.DeployResult{}, err
	}
	logger.Info("Successfully parsed manifest", "path", manifest.Path, "actions", len(manifest.Actions))

	result := model.DeployResult{Total: len(manifest.Actions)}
	for i, action := range manifest.Actions {
		if err := runAction(ctx, job.MirrorPath, action); err != nil {
			return result, goerr.Wrap(err, "deployment action failed",
				goerr.V("index", i),
				goerr.V("action", action.String()),
			)
		}
		result.Succeeded++
	}

	return result, nil
}

func runAction(ctx context.Context, mirrorPath string, action model.DeploymentAction) error {
	switch a := action.(type) {
	case model.CommandAction:
		return runCommand(ctx, mirrorPath, a)
	case model.CopyAction:
		return runCopy(ctx, mirrorPath, a)
	default:
		return goerr.New("unsupported deployment action", goerr.V("action", action.String()))
	}
}

func runCommand(ctx context.Context, mirrorPath string, action model.CommandAction) error {
	logger := ctxlog.From(ctx).With("command", action.Program, "args", action.Args)
	logger.Info("Running command")

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, action.Program, action.Args...)
	cmd.Dir = mirrorPath
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		logger.Error("Command failed", "error", err, "output", output.String())
		return goerr.Wrap(err, "command failed", goerr.V("command", action.String()))
	}

	logger.Info("Command succeeded")
	logger.Debug("Command output", "output", output.String())
	return nil
}

func runCopy(ctx context.Context, mirrorPath string, action model.CopyAction) error {
	logger := ctxlog.From(ctx).With("src", action.Src, "dest", action.Dest)
	logger.Info("Copying file")

	if !filepath.IsLocal(action.Src) {
		return goerr.New("copy source escapes the repository", goerr.V("src", action.Src))
	}
	src := filepath.Join(mirrorPath, action.Src)

	opts := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		Skip: func(_ os.FileInfo, path, _ string) (bool, error) {
			return filepath.Base(path) == ".git", nil
		},
	}
	if err := copy.Copy(src, action.Dest, opts); err != nil {
		logger.Error("Failed to copy file", "error", err)
		return goerr.Wrap(err, "copy failed", goerr.V("src", action.Src), goerr.V("dest", action.Dest))
	}

	return nil
}
