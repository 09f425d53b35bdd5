// Package config loads build settings for one project. Layers, lowest
// first: defaults, blueprintgen.yaml in the project root, the project's .env
// file, then BLUEPRINTGEN_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the optional per-project settings file.
const FileName = "blueprintgen.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLUEPRINTGEN_"

// ErrNoRootNamespace is returned when no root namespace is configured and
// none can be read from go.mod.
var ErrNoRootNamespace = errors.New("config: root namespace not set and no go.mod module line found")

type Config struct {
	ProjectRoot   string         `yaml:"-"`
	RootNamespace string         `yaml:"root_namespace"`
	Catalog       CatalogConfig  `yaml:"catalog"`
	Registry      RegistryConfig `yaml:"registry"`
	Output        OutputConfig   `yaml:"output"`
	DB            string         `yaml:"db"`
	Hook          string         `yaml:"hook"`
	Parallel      bool           `yaml:"parallel"`
	LogLevel      string         `yaml:"log_level"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type RegistryConfig struct {
	// Package is an import path, or a directory relative to the project
	// root.
	Package string `yaml:"package"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Package string `yaml:"package"` // package name; defaults to the directory name
}

// Default returns the built-in settings for the project at root.
func Default(root string) *Config {
	return &Config{
		ProjectRoot: root,
		Catalog:     CatalogConfig{Path: "catalog.json"},
		Registry:    RegistryConfig{Package: "registry"},
		Output:      OutputConfig{Dir: "catalog"},
		DB:          ".blueprintgen.db",
		Parallel:    true,
		LogLevel:    "info",
	}
}

// Load reads the settings for the project at root.
func Load(root string) (*Config, error) {
	return load(root, os.LookupEnv)
}

func load(root string, lookup func(string) (string, bool)) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default(abs)

	data, err := os.ReadFile(filepath.Join(abs, FileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", FileName, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config: read %s: %w", FileName, err)
	}

	dotenv, err := godotenv.Read(filepath.Join(abs, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	env := layered{lookup: lookup, dotenv: dotenv}

	cfg.RootNamespace = env.get("ROOT_NAMESPACE", cfg.RootNamespace)
	cfg.Catalog.Path = env.get("CATALOG", cfg.Catalog.Path)
	cfg.Registry.Package = env.get("REGISTRY", cfg.Registry.Package)
	cfg.Output.Dir = env.get("OUTPUT_DIR", cfg.Output.Dir)
	cfg.Output.Package = env.get("OUTPUT_PACKAGE", cfg.Output.Package)
	cfg.DB = env.get("DB", cfg.DB)
	cfg.Hook = env.get("HOOK", cfg.Hook)
	cfg.Parallel = env.getBool("PARALLEL", cfg.Parallel)
	cfg.LogLevel = env.get("LOG_LEVEL", cfg.LogLevel)

	if cfg.RootNamespace == "" {
		mod, err := ModulePath(filepath.Join(abs, "go.mod"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg.RootNamespace = mod
	}
	return cfg, nil
}

// Validate reports settings a pass cannot run without.
func (c *Config) Validate() error {
	if c.RootNamespace == "" {
		return ErrNoRootNamespace
	}
	if c.Catalog.Path == "" {
		return errors.New("config: catalog path is empty")
	}
	if strings.HasPrefix(path.Clean(filepath.ToSlash(c.Output.Dir)), "../") {
		return fmt.Errorf("config: output dir %q is outside the project", c.Output.Dir)
	}
	return nil
}

// layered looks a key up in the process environment, then in .env.
type layered struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
}

func (l layered) get(key, fallback string) string {
	if v, ok := l.lookup(EnvPrefix + key); ok && v != "" {
		return v
	}
	if v := l.dotenv[EnvPrefix+key]; v != "" {
		return v
	}
	return fallback
}

func (l layered) getBool(key string, fallback bool) bool {
	if v := l.get(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// ModulePath reads the module path from a go.mod file.
func ModulePath(goModPath string) (string, error) {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	return "", fmt.Errorf("config: no module line in %s", goModPath)
}

// Abs resolves p against the project root unless it is already absolute.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

// CatalogPath returns the absolute catalog file path.
func (c *Config) CatalogPath() string { return c.Abs(c.Catalog.Path) }

// DBPath returns the absolute session database path.
func (c *Config) DBPath() string { return c.Abs(c.DB) }

// HookPath returns the absolute hook script path, or "" when none is set.
func (c *Config) HookPath() string { return c.Abs(c.Hook) }

// RegistryImportPath returns the registry package's import path.
func (c *Config) RegistryImportPath() string {
	return c.importPath(c.Registry.Package)
}

// OutputImportPath returns the output package's import path.
func (c *Config) OutputImportPath() string {
	return c.importPath(c.Output.Dir)
}

// OutputDir returns the output directory, slash-separated and relative to
// the project root.
func (c *Config) OutputDir() string {
	return path.Clean(filepath.ToSlash(c.Output.Dir))
}

// OutputPackageName returns the package clause used for emitted units.
func (c *Config) OutputPackageName() string {
	if c.Output.Package != "" {
		return c.Output.Package
	}
	return path.Base(c.OutputImportPath())
}

func (c *Config) importPath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == "" {
		return c.RootNamespace
	}
	if p == c.RootNamespace || strings.HasPrefix(p, c.RootNamespace+"/") {
		return p
	}
	return c.RootNamespace + "/" + p
}
