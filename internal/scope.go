package internal

import (
	"os"
	"path/filepath"
)

const DataDirname = ".clipfind"

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

// Scope locates a photo library and its data directory.
type Scope struct {
	Type     ScopeType
	Path     string // library root
	DataPath string // .clipfind directory path
}

func (s Scope) CachePath() string {
	return filepath.Join(s.DataPath, "cache")
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.DataPath, "config.yaml")
}

func (s Scope) VocabPath(filename string) string {
	return filepath.Join(s.DataPath, filename)
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

// NewScopeResolverWithHome resolves the global scope under home instead of
// the user's home directory.
func NewScopeResolverWithHome(home string) *ScopeResolver {
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type:     ScopeGlobal,
		Path:     filepath.Join(r.homeDir, "Pictures"),
		DataPath: filepath.Join(r.homeDir, DataDirname),
	}
}

// Project finds the nearest .clipfind directory walking up from the
// working directory.
func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		dataPath := filepath.Join(dir, DataDirname)
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() && dataPath != r.Global().DataPath {
			return Scope{Type: ScopeProject, Path: dir, DataPath: dataPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}

// EnvVars is the environment handed to external clipfind-* commands.
func (r *ScopeResolver) EnvVars(scope Scope, version string) map[string]string {
	bin, _ := os.Executable()
	return map[string]string{
		"CLIPFIND_SCOPE":     string(scope.Type),
		"CLIPFIND_DATA_PATH": scope.DataPath,
		"CLIPFIND_ROOT":      scope.Path,
		"CLIPFIND_CONFIG":    scope.ConfigPath(),
		"CLIPFIND_VERSION":   version,
		"CLIPFIND_BIN":       bin,
	}
}
