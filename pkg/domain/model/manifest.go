package model

import (
	"fmt"
	"strings"
)

// ManifestFileNames are looked up at the repository root, in order
var ManifestFileNames = []string{"autodeploy.toml", "autodeploy.yaml", "autodeploy.yml"}

// DeploymentAction is one step of a manifest: CommandAction or CopyAction
type DeploymentAction interface {
	fmt.Stringer
	deploymentAction()
}

// CommandAction spawns Program with Args and succeeds on exit status zero
type CommandAction struct {
	Program string
	Args    []string
}

// CopyAction copies Src, relative to the repository root, to Dest
type CopyAction struct {
	Src  string
	Dest string
}

func (CommandAction) deploymentAction() {}
func (CopyAction) deploymentAction()    {}

func (x CommandAction) String() string {
	return strings.TrimSpace("command " + x.Program + " " + strings.Join(x.Args, " "))
}

func (x CopyAction) String() string {
	return "copy " + x.Src + " -> " + x.Dest
}

// DeploymentManifest is the ordered action list of a repository
type DeploymentManifest struct {
	Path    string
	Actions []DeploymentAction
}
