package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/game\n\ngo 1.25\n")

	cfg, err := load(dir, noEnv)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "example.com/game", cfg.RootNamespace)
	assert.Equal(t, filepath.Join(dir, "catalog.json"), cfg.CatalogPath())
	assert.Equal(t, filepath.Join(dir, ".blueprintgen.db"), cfg.DBPath())
	assert.Equal(t, "example.com/game/registry", cfg.RegistryImportPath())
	assert.Equal(t, "example.com/game/catalog", cfg.OutputImportPath())
	assert.Equal(t, "catalog", cfg.OutputPackageName())
	assert.Equal(t, "catalog", cfg.OutputDir())
	assert.Empty(t, cfg.HookPath())
	assert.True(t, cfg.Parallel)
}

func TestLoad_Layers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/game\n")
	writeFile(t, dir, FileName, `
root_namespace: example.com/fromyaml
catalog:
  path: data/catalog.json
registry:
  package: example.com/shared/defaults
output:
  dir: gen/refs
  package: refs
parallel: false
`)
	writeFile(t, dir, ".env", "BLUEPRINTGEN_HOOK=hooks/filter.risor\nBLUEPRINTGEN_DB=from-dotenv.db\n")

	cfg, err := load(dir, envMap(map[string]string{"BLUEPRINTGEN_DB": "from-env.db"}))
	require.NoError(t, err)

	assert.Equal(t, "example.com/fromyaml", cfg.RootNamespace)
	assert.Equal(t, filepath.Join(dir, "data", "catalog.json"), cfg.CatalogPath())
	assert.Equal(t, "example.com/shared/defaults", cfg.RegistryImportPath())
	assert.Equal(t, "example.com/fromyaml/gen/refs", cfg.OutputImportPath())
	assert.Equal(t, "refs", cfg.OutputPackageName())
	assert.False(t, cfg.Parallel)
	// The process environment beats .env, which beats the yaml file.
	assert.Equal(t, filepath.Join(dir, "from-env.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join(dir, "hooks", "filter.risor"), cfg.HookPath())
}

func TestLoad_BadYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, FileName, "catalog: [unclosed\n")
	_, err := load(dir, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileName)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := Default(t.TempDir())
	require.ErrorIs(t, cfg.Validate(), ErrNoRootNamespace)

	cfg.RootNamespace = "example.com/game"
	cfg.Output.Dir = "../elsewhere"
	require.Error(t, cfg.Validate())

	cfg.Output.Dir = "."
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "example.com/game", cfg.OutputImportPath())
	assert.Equal(t, "game", cfg.OutputPackageName())
}

func TestModulePath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "// comment\nmodule \"example.com/quoted\"\n")
	mod, err := ModulePath(filepath.Join(dir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "example.com/quoted", mod)

	writeFile(t, dir, "empty.mod", "go 1.25\n")
	_, err = ModulePath(filepath.Join(dir, "empty.mod"))
	require.Error(t, err)
}
