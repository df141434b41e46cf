package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/ros2msg"
)

// Separator introduces each dependency in a concatenated ros2msg schema.
var Separator = strings.Repeat("=", 80)

// Ros2Msgs resolves ROS 2 message definitions.
type Ros2Msgs struct {
	msgDirs  []string
	cacheDir string
	logger   *zap.Logger

	mu    sync.Mutex
	texts map[string]string
}

// NewRos2Msgs creates a resolver over the configured directories, the distro
// cache and the embedded definitions, in that order.
func NewRos2Msgs(opts Options, logger *zap.Logger) *Ros2Msgs {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Ros2Msgs{
		msgDirs: append([]string(nil), opts.MsgDirs...),
		logger:  logger,
		texts:   make(map[string]string),
	}
	if opts.CacheDir != "" {
		r.cacheDir = filepath.Join(opts.CacheDir, opts.distro())
	}
	return r
}

// Lookup returns the .msg text of "pkg/Name" or "pkg/msg/Name".
func (r *Ros2Msgs) Lookup(name string) (string, error) {
	pkg, msg, err := ros2msg.SplitName(name)
	if err != nil {
		return "", &apperrors.SchemaError{Name: name, Encoding: "ros2msg", Err: err}
	}
	key := pkg + "/" + msg

	r.mu.Lock()
	defer r.mu.Unlock()
	if text, ok := r.texts[key]; ok {
		return text, nil
	}

	text, err := r.find(pkg, msg)
	if err != nil {
		return "", &apperrors.SchemaError{Name: name, Encoding: "ros2msg", Err: err}
	}
	r.texts[key] = text
	return text, nil
}

func (r *Ros2Msgs) find(pkg, msg string) (string, error) {
	pattern := fmt.Sprintf("**/%s/msg/%s.msg", pkg, msg)
	for _, dir := range r.msgDirs {
		if text, ok, err := r.glob(dir, pattern); ok || err != nil {
			return text, err
		}
	}

	if r.cacheDir != "" {
		cachePattern := pattern
		if pkg == "foxglove_msgs" {
			cachePattern = fmt.Sprintf("**/foxglove-sdk/**/ros2/%s.msg", msg)
		}
		if text, ok, err := r.glob(r.cacheDir, cachePattern); ok || err != nil {
			return text, err
		}
	}

	if text, ok := embeddedMsg(pkg, msg); ok {
		return text, nil
	}
	return "", fmt.Errorf("%w: couldn't find %s/%s", apperrors.ErrUnknownSchema, pkg, msg)
}

// glob reads the first match of pattern under dir in lexical order.
func (r *Ros2Msgs) glob(dir, pattern string) (string, bool, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return "", false, fmt.Errorf("search %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	sort.Strings(matches)
	path := filepath.Join(dir, filepath.FromSlash(matches[0]))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	r.logger.Debug("Loaded message definition", zap.String("file", path))
	return string(data), true, nil
}

// Definition returns the full schema text of name: its own definition
// followed by every transitive dependency outside builtin_interfaces, each
// once and in breadth-first order. A non-empty custom replaces the looked up
// text of name itself.
func (r *Ros2Msgs) Definition(name, custom string) (string, error) {
	pkg, msg, err := ros2msg.SplitName(name)
	if err != nil {
		return "", &apperrors.SchemaError{Name: name, Encoding: "ros2msg", Err: err}
	}

	text := custom
	if text == "" {
		if text, err = r.Lookup(name); err != nil {
			return "", err
		}
	}
	root, err := ros2msg.Parse(pkg, msg, text)
	if err != nil {
		return "", &apperrors.SchemaError{Name: name, Encoding: "ros2msg", Err: err}
	}

	var b strings.Builder
	b.WriteString(text)
	seen := map[string]bool{root.FullName(): true}
	queue := externalDependencies(root)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if seen[dep] {
			continue
		}
		seen[dep] = true

		depText, err := r.Lookup(dep)
		if err != nil {
			return "", err
		}
		depPkg, depMsg, _ := ros2msg.SplitName(dep)
		def, err := ros2msg.Parse(depPkg, depMsg, depText)
		if err != nil {
			return "", &apperrors.SchemaError{Name: dep, Encoding: "ros2msg", Err: err}
		}

		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString(Separator + "\n")
		b.WriteString("MSG: " + dep + "\n")
		b.WriteString(depText)
		queue = append(queue, externalDependencies(def)...)
	}
	return b.String(), nil
}

func externalDependencies(def *ros2msg.MessageDefinition) []string {
	var deps []string
	for _, dep := range def.Dependencies() {
		if strings.HasPrefix(dep, "builtin_interfaces/") {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}
