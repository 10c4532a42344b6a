package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/command"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/validation"
)

// compiledExtensions are build outputs that never carry loadable sources.
var compiledExtensions = map[string]struct{}{
	".a":     {},
	".o":     {},
	".so":    {},
	".dll":   {},
	".dylib": {},
	".exe":   {},
	".pyc":   {},
	".test":  {},
}

// RegisterByModule registers the definitions of one module. A ref naming an
// existing file is read by the loader for its extension; any other ref is a
// dotted module reference resolved through the module table. Members that do
// not satisfy the command contract are skipped; members whose id is already
// registered are returned as their existing entry.
func (r *Registry) RegisterByModule(ref string) ([]command.Definition, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		defs, err := r.loadFile(ref)
		if err != nil {
			return nil, err
		}
		return r.register(defs), nil
	}

	if !validation.IsDottedReference(ref) {
		return nil, fmt.Errorf("module %q is neither a file nor a dotted reference: %w", ref, ErrUnknownModule)
	}
	defs, ok := r.modules.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("module %q: %w", ref, ErrUnknownModule)
	}
	return r.register(defs), nil
}

// RegisterByPackage walks dir recursively and registers every loadable file.
// Each file is read at most once per registry. Compiled artifacts, Go test
// files, hidden or underscore-prefixed directories and files without a loader
// are skipped. A file that fails to load is logged and skipped.
func (r *Registry) RegisterByPackage(dir string) ([]command.Definition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat package %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("package %s is not a directory", dir)
	}

	var found []command.Definition
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			r.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return fs.SkipDir
			}
			return nil
		}
		if !r.loadable(name) {
			return nil
		}

		defs, err := r.loadFile(path)
		if err != nil {
			r.logger.Warn("failed to load command file",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}
		found = append(found, defs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk package %s: %w", dir, err)
	}

	return r.register(found), nil
}

// RegisterByEnv reads a path list from the environment variable name and
// registers every element: an existing directory as a package, an existing
// file as a module, anything else as a dotted module reference. Directories
// win over the dotted reading when both are possible.
//
// An unset variable, or an element that is neither an existing path nor a
// well-formed dotted reference, fails with a configuration error naming the
// variable. Unknown dotted references are logged and skipped.
func (r *Registry) RegisterByEnv(name string) ([]command.Definition, error) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return nil, cmderrors.NewConfigurationError(name, errors.New("environment variable not set"))
	}

	var found []command.Definition
	for _, elem := range filepath.SplitList(value) {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}

		defs, err := r.registerElement(elem)
		switch {
		case err == nil:
			found = append(found, defs...)
		case errors.Is(err, ErrUnknownModule) && validation.IsDottedReference(elem):
			r.logger.Warn("skipping unknown module",
				zap.String("variable", name),
				zap.String("module", elem),
			)
		case errors.Is(err, ErrUnknownModule):
			return nil, cmderrors.NewConfigurationError(name,
				fmt.Errorf("entry %q is not an existing path or dotted module reference", elem))
		default:
			r.logger.Warn("skipping entry",
				zap.String("variable", name),
				zap.String("entry", elem),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("discovered commands",
		zap.String("variable", name),
		zap.Int("count", len(found)),
	)
	return dedupe(found), nil
}

func (r *Registry) registerElement(elem string) ([]command.Definition, error) {
	info, err := os.Stat(elem)
	if err == nil && info.IsDir() {
		return r.RegisterByPackage(elem)
	}
	return r.RegisterByModule(elem)
}

// loadable reports whether a file in a package walk is worth handing to a
// loader.
func (r *Registry) loadable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, compiled := compiledExtensions[ext]; compiled {
		return false
	}
	if strings.HasSuffix(name, "_test.go") {
		return false
	}
	r.mu.RLock()
	_, ok := r.loaders[ext]
	r.mu.RUnlock()
	return ok
}

// loadFile reads path through its loader, once per absolute path.
func (r *Registry) loadFile(path string) ([]command.Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	r.mu.RLock()
	cached, seen := r.visited[abs]
	loader, hasLoader := r.loaders[strings.ToLower(filepath.Ext(abs))]
	r.mu.RUnlock()

	if seen {
		return cached, nil
	}
	if !hasLoader {
		return nil, fmt.Errorf("%s: %w", abs, ErrNoLoader)
	}

	defs, err := loader.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", abs, err)
	}

	r.mu.Lock()
	r.visited[abs] = defs
	r.mu.Unlock()

	r.logger.Debug("loaded command file", zap.String("path", abs), zap.Int("definitions", len(defs)))
	return defs, nil
}

func dedupe(defs []command.Definition) []command.Definition {
	seen := make(map[string]struct{}, len(defs))
	out := defs[:0]
	for _, def := range defs {
		if _, ok := seen[def.ID]; ok {
			continue
		}
		seen[def.ID] = struct{}{}
		out = append(out, def)
	}
	return out
}
