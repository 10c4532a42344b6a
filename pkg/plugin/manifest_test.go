package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/cmdkit/internal/testutil"
	"github.com/dshills/cmdkit/pkg/command"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/executor"
	"github.com/dshills/cmdkit/pkg/host/memhost"
	"github.com/dshills/cmdkit/pkg/registry"
)

const sceneManifest = `module: scene.tools
commands:
  - id: scene.rename
    creator: pipeline
    version: 1.2.0
    undoable: true
    ui:
      label: Rename
    parameters:
      - name: node
        default: root
      - name: name
        default: node1
        description: new node name
    arguments_schema:
      type: object
      properties:
        name:
          type: string
          minLength: 1
    cancel_if: name == "cancel"
    cancel_message: rename cancelled
    set:
      "${node}.name": name
      "${node}.renamed": "true"
    result: attr(node + ".name")
  - id: scene.broken
    creator: pipeline
    undoable: true
    parameters:
      - name: size
        default: big
    set:
      a.first: '"written"'
      b.second: size - 1
  - id: scene.hidden
    creator: pipeline
    enabled: false
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	return testutil.WriteFile(t, filepath.Join(dir, name), content)
}

func newSceneExecutor(t *testing.T) (*executor.Executor, *memhost.Host) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	scene := memhost.New("scene")
	dir := testutil.CommandTree(t, map[string]string{"scene.yaml": sceneManifest})

	reg := registry.New(logger,
		registry.WithLoader(NewManifestLoader(scene, logger)),
		registry.WithModules(registry.NewModuleTable()),
	)
	defs, err := reg.RegisterByPackage(dir)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	ex := executor.New(reg, executor.WithLogger(logger))
	ex.Register(defs...)
	return ex, scene
}

func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "yaml", input: sceneManifest},
		{name: "json", input: `{"commands": [{"id": "json.cmd", "creator": "tests"}]}`},
		{name: "empty", input: "", wantErr: true},
		{name: "no commands", input: "commands: []", wantErr: true},
		{name: "missing creator", input: "commands:\n  - id: a.b\n", wantErr: true},
		{name: "unknown field", input: "commands:\n  - id: a.b\n    creator: x\n    colour: red\n", wantErr: true},
		{name: "set value not a string", input: "commands:\n  - id: a.b\n    creator: x\n    set:\n      a: 1\n", wantErr: true},
		{name: "malformed yaml", input: "commands: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManifest([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidManifest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseManifest_SemanticChecks(t *testing.T) {
	eval := NewEvaluator()
	tests := []struct {
		name  string
		input string
	}{
		{name: "bad id", input: "commands:\n  - id: bad id\n    creator: x\n"},
		{name: "bad version", input: "commands:\n  - id: a.b\n    creator: x\n    version: one\n"},
		{name: "duplicate id", input: "commands:\n  - id: a.b\n    creator: x\n  - id: a.b\n    creator: y\n"},
		{name: "bad expression", input: "commands:\n  - id: a.b\n    creator: x\n    result: \"1 +\"\n"},
		{name: "unsafe expression", input: "commands:\n  - id: a.b\n    creator: x\n    cancel_if: exec.Command(\"ls\")\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.input), eval)
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestManifestLoader_Definitions(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tools.yml", sceneManifest)
	loader := NewManifestLoader(memhost.New("scene"), zaptest.NewLogger(t))

	defs, err := loader.Load(path)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	rename := defs[0]
	assert.Equal(t, "scene.rename", rename.ID)
	assert.Equal(t, "pipeline", rename.Creator)
	assert.Equal(t, "1.2.0", rename.VersionString())
	assert.Equal(t, "scene.tools", rename.Module)
	assert.Equal(t, path, rename.Source)
	assert.True(t, rename.Valid())

	cmd := rename.New()
	assert.True(t, cmd.IsUndoable())
	assert.Equal(t, "Rename", cmd.UIData().Label)
	schema, err := command.DeriveSchema(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"node", "name"}, schema.Names())

	assert.Empty(t, defs[1].VersionString())
	assert.False(t, defs[2].New().IsEnabled())
}

func TestManifestLoader_ModuleDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "lighting.json", `{"commands": [{"id": "light.on", "creator": "tests"}]}`)

	defs, err := NewManifestLoader(memhost.New("scene"), nil).Load(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "lighting", defs[0].Module)
}

func TestManifestLoader_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "bad.yaml", "commands: []")

	_, err := NewManifestLoader(memhost.New("scene"), nil).Load(path)
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = NewManifestLoader(memhost.New("scene"), nil).Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScriptCommand_DoAndUndo(t *testing.T) {
	ex, scene := newSceneExecutor(t)
	ctx := context.Background()

	result, err := ex.Execute(ctx, "scene.rename", command.Arguments{"name": "hero"})
	require.NoError(t, err)
	assert.Equal(t, "hero", result)
	assert.Equal(t, map[string]any{"root.name": "hero", "root.renamed": true}, scene.Attrs())

	ok, err := ex.UndoLast(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, scene.Attrs(), "attributes that did not exist are deleted")

	ok, err = ex.RedoLast(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hero", scene.Attrs()["root.name"])
}

func TestScriptCommand_UndoRestoresPreviousValues(t *testing.T) {
	ex, scene := newSceneExecutor(t)
	ctx := context.Background()
	scene.SetAttr("cam.name", "camera1")

	_, err := ex.Execute(ctx, "scene.rename", command.Arguments{"node": "cam", "name": "shot_cam"})
	require.NoError(t, err)
	v, _ := scene.Attr("cam.name")
	assert.Equal(t, "shot_cam", v)

	_, err = ex.UndoLast(ctx)
	require.NoError(t, err)
	v, ok := scene.Attr("cam.name")
	assert.True(t, ok)
	assert.Equal(t, "camera1", v)
	_, ok = scene.Attr("cam.renamed")
	assert.False(t, ok)
}

func TestScriptCommand_CancelIf(t *testing.T) {
	ex, scene := newSceneExecutor(t)

	_, err := ex.Execute(context.Background(), "scene.rename", command.Arguments{"name": "cancel"})

	require.True(t, cmderrors.IsCancelled(err))
	assert.Contains(t, err.Error(), "rename cancelled")
	assert.Empty(t, scene.Attrs())
	assert.Empty(t, ex.UndoHistory())
}

func TestScriptCommand_ArgumentsSchema(t *testing.T) {
	ex, scene := newSceneExecutor(t)

	_, err := ex.Execute(context.Background(), "scene.rename", command.Arguments{"name": ""})
	require.ErrorIs(t, err, cmderrors.ErrUnacceptedArguments)
	assert.Empty(t, scene.Attrs())

	_, err = ex.Execute(context.Background(), "scene.rename", command.Arguments{"name": 7})
	require.ErrorIs(t, err, cmderrors.ErrUnacceptedArguments)
}

func TestScriptCommand_FailedSetRollsBack(t *testing.T) {
	ex, scene := newSceneExecutor(t)

	_, err := ex.Execute(context.Background(), "scene.broken", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExpression)
	assert.Empty(t, scene.Attrs(), "a.first is rolled back")
}

func TestScriptCommand_Disabled(t *testing.T) {
	ex, _ := newSceneExecutor(t)

	_, err := ex.Execute(context.Background(), "scene.hidden", nil)
	assert.ErrorIs(t, err, cmderrors.ErrDisabled)
}

func TestScriptCommand_RequiredParameter(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "req.yaml", "commands:\n  - id: req.cmd\n    creator: x\n    parameters:\n      - name: target\n        required: true\n")
	defs, err := NewManifestLoader(memhost.New("scene"), nil).Load(path)
	require.NoError(t, err)

	_, err = command.DeriveSchema(defs[0].New())
	assert.ErrorIs(t, err, cmderrors.ErrSchema)
}

func TestExpandPath(t *testing.T) {
	args := command.Arguments{"node": "rig", "index": 2}
	assert.Equal(t, "rig.joint2.rotate", expandPath("${node}.joint${index}.rotate", args))
	assert.Equal(t, ".name", expandPath("${missing}.name", args))
	assert.Equal(t, "plain.path", expandPath("plain.path", args))
}
