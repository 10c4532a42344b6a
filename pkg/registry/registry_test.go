package registry

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/cmdkit/internal/testutil"
	"github.com/dshills/cmdkit/pkg/command"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCommand struct {
	command.Base
	id string
}

func (s *stubCommand) ID() string      { return s.id }
func (s *stubCommand) Creator() string { return "tests" }
func (s *stubCommand) DoIt(context.Context, command.Arguments) (any, error) {
	return s.id, nil
}

func stubDef(id string) command.Definition {
	return command.Define(func() command.Command { return &stubCommand{id: id} })
}

// lineLoader reads one command id per line from ".cmds" files. A line
// "!fail" makes the whole file fail to load.
type lineLoader struct {
	mu    sync.Mutex
	loads map[string]int
}

func newLineLoader() *lineLoader {
	return &lineLoader{loads: make(map[string]int)}
}

func (l *lineLoader) Extensions() []string { return []string{".cmds"} }

func (l *lineLoader) Load(path string) ([]command.Definition, error) {
	l.mu.Lock()
	l.loads[path]++
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var defs []command.Definition
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "!fail":
			return nil, errors.New("syntax error")
		default:
			defs = append(defs, stubDef(line))
		}
	}
	return defs, sc.Err()
}

func (l *lineLoader) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[path]
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	return testutil.WriteFile(t, path, content)
}

func TestRegisterCommand_Idempotent(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	def := stubDef("test.echo")

	got, ok := reg.RegisterCommand(def)
	require.True(t, ok)
	assert.Equal(t, "test.echo", got.ID)
	assert.Equal(t, 1, reg.Len())

	again, ok := reg.RegisterCommand(stubDef("test.echo"))
	require.True(t, ok)
	assert.Equal(t, 1, reg.Len(), "second registration must not grow the registry")
	assert.Equal(t, def.Source, again.Source)
}

func TestRegisterCommand_SkipsFactoryForBuiltDefinitions(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	calls := 0
	def := command.FromInstance(&stubCommand{id: "test.costly"}, func() command.Command {
		calls++
		return &stubCommand{id: "test.costly"}
	})

	_, ok := reg.RegisterCommand(def)
	require.True(t, ok)
	_, ok = reg.RegisterCommand(def)
	require.True(t, ok)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterCommand_RejectsInvalid(t *testing.T) {
	reg := New(nil)

	tests := []struct {
		name string
		def  command.Definition
	}{
		{"no factory", command.Definition{ID: "x.y"}},
		{"nil command", command.Define(func() command.Command { return nil })},
		{"malformed id", stubDef("bad id")},
		{"empty id", stubDef("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reg.RegisterCommand(tt.def)
			assert.False(t, ok)
			assert.Equal(t, command.Definition{}, got)
		})
	}
	assert.Equal(t, 0, reg.Len())
}

func TestFindAndDefinitions(t *testing.T) {
	reg := New(nil)
	reg.RegisterCommand(stubDef("b.second"))
	reg.RegisterCommand(stubDef("a.first"))

	def, ok := reg.Find("a.first")
	require.True(t, ok)
	assert.Equal(t, "a.first", def.ID)

	_, ok = reg.Find("missing")
	assert.False(t, ok)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a.first", defs[0].ID)
	assert.Equal(t, "b.second", defs[1].ID)
}

func TestRegisterByModule_DottedReference(t *testing.T) {
	modules := NewModuleTable()
	modules.Provide("studio.rigging", stubDef("rig.mirror"), stubDef("rig.orient"))
	modules.Provide("studio.rigging", command.Definition{ID: "rig.broken"})
	reg := New(nil, WithModules(modules))

	defs, err := reg.RegisterByModule("studio.rigging")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "rig.mirror", defs[0].ID)
	assert.Equal(t, "rig.orient", defs[1].ID)

	// already registered members come back as their existing entries
	again, err := reg.RegisterByModule("studio.rigging")
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 2, reg.Len())

	_, err = reg.RegisterByModule("studio.unknown")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRegisterByModule_File(t *testing.T) {
	loader := newLineLoader()
	reg := New(nil, WithLoader(loader))
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "ops.cmds"), "test.echo\ntest.counter\ntest.echo\n")

	defs, err := reg.RegisterByModule(path)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = reg.RegisterByModule(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count(path), "a file is loaded at most once")

	other := writeFile(t, filepath.Join(dir, "notes.txt"), "test.echo")
	_, err = reg.RegisterByModule(other)
	assert.ErrorIs(t, err, ErrNoLoader)
}

func TestRegisterByPackage(t *testing.T) {
	loader := newLineLoader()
	core, logs := observer.New(zapcore.WarnLevel)
	reg := New(zap.New(core), WithLoader(loader))

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.cmds"), "pkg.a\n")
	writeFile(t, filepath.Join(root, "nested", "b.cmds"), "pkg.b\n")
	writeFile(t, filepath.Join(root, "nested", "deeper", "c.cmds"), "pkg.c\npkg.a\n")
	writeFile(t, filepath.Join(root, "broken.cmds"), "pkg.x\n!fail\n")
	writeFile(t, filepath.Join(root, "lib.so"), "pkg.compiled\n")
	writeFile(t, filepath.Join(root, "ops_test.go"), "package ops\n")
	writeFile(t, filepath.Join(root, "readme.md"), "docs\n")
	writeFile(t, filepath.Join(root, ".hidden", "h.cmds"), "pkg.hidden\n")
	writeFile(t, filepath.Join(root, "_scratch", "s.cmds"), "pkg.scratch\n")

	defs, err := reg.RegisterByPackage(root)
	require.NoError(t, err)

	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"pkg.a", "pkg.b", "pkg.c"}, ids)
	assert.Equal(t, 3, reg.Len())

	// the broken file is logged and skipped
	require.Equal(t, 1, logs.FilterMessage("failed to load command file").Len())

	// walking again reuses the visited set
	_, err = reg.RegisterByPackage(root)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count(filepath.Join(root, "a.cmds")))

	_, err = reg.RegisterByPackage(filepath.Join(root, "a.cmds"))
	assert.Error(t, err)
	_, err = reg.RegisterByPackage(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestRegisterByEnv_Unset(t *testing.T) {
	reg := New(nil)
	t.Setenv("CMDKIT_TEST_PATH", "")
	require.NoError(t, os.Unsetenv("CMDKIT_TEST_PATH"))

	_, err := reg.RegisterByEnv("CMDKIT_TEST_PATH")

	require.ErrorIs(t, err, cmderrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "CMDKIT_TEST_PATH")
}

func TestRegisterByEnv_MixedEntries(t *testing.T) {
	loader := newLineLoader()
	modules := NewModuleTable()
	modules.Provide("studio.ops", stubDef("ops.dotted"))
	core, logs := observer.New(zapcore.WarnLevel)
	reg := New(zap.New(core), WithLoader(loader), WithModules(modules))

	pkgDir := t.TempDir()
	writeFile(t, filepath.Join(pkgDir, "p.cmds"), "ops.package\n")
	file := writeFile(t, filepath.Join(t.TempDir(), "single.cmds"), "ops.file\n")

	value := strings.Join([]string{pkgDir, "", file, "studio.ops", "studio.missing"}, string(os.PathListSeparator))
	t.Setenv("CMDKIT_TEST_PATH", value)

	defs, err := reg.RegisterByEnv("CMDKIT_TEST_PATH")
	require.NoError(t, err)

	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"ops.package", "ops.file", "ops.dotted"}, ids)
	assert.Equal(t, 1, logs.FilterMessage("skipping unknown module").Len())
}

func TestRegisterByEnv_DirectoryPreferredOverDotted(t *testing.T) {
	loader := newLineLoader()
	modules := NewModuleTable()
	modules.Provide("ops.pkg", stubDef("from.table"))
	reg := New(nil, WithLoader(loader), WithModules(modules))

	// a directory whose relative name also parses as a dotted reference
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "ops.pkg", "x.cmds"), "from.disk\n")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(base))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CMDKIT_TEST_PATH", "ops.pkg")

	defs, err := reg.RegisterByEnv("CMDKIT_TEST_PATH")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "from.disk", defs[0].ID)
}

func TestRegisterByEnv_MalformedEntry(t *testing.T) {
	reg := New(nil)
	t.Setenv("CMDKIT_TEST_PATH", "/definitely/not/here")

	_, err := reg.RegisterByEnv("CMDKIT_TEST_PATH")

	require.ErrorIs(t, err, cmderrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "/definitely/not/here")
}

func TestModuleTable(t *testing.T) {
	table := NewModuleTable()
	table.Provide("b.mod", stubDef("x.one"))
	table.Provide("a.mod")

	assert.Equal(t, []string{"a.mod", "b.mod"}, table.Names())

	defs, ok := table.Lookup("b.mod")
	require.True(t, ok)
	defs[0] = command.Definition{}

	again, _ := table.Lookup("b.mod")
	assert.Equal(t, "x.one", again[0].ID)

	_, ok = table.Lookup("c.mod")
	assert.False(t, ok)
}
