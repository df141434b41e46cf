package converter

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/mapping"
)

// matched pairs a mapping with the relative paths of the files it selected.
type matched[M any] struct {
	mapping M
	files   []string
}

// plan lists the files selected by every mapping of the config.
type plan struct {
	tabular     []matched[mapping.TabularMapping]
	other       []matched[mapping.OtherMapping]
	attachments []matched[mapping.Attachment]
	metadata    []matched[mapping.Metadata]
}

func (p *plan) files() int {
	n := 0
	for _, m := range p.tabular {
		n += len(m.files)
	}
	for _, m := range p.other {
		n += len(m.files)
	}
	for _, m := range p.attachments {
		n += len(m.files)
	}
	for _, m := range p.metadata {
		n += len(m.files)
	}
	return n
}

// prepare matches the files of every mapping under inputDir.
func (c *Converter) prepare(inputDir string) (*plan, error) {
	fsys := os.DirFS(inputDir)
	p := &plan{}

	for _, m := range c.cfg.TabularMappings {
		files, err := c.match(fsys, m.FileMatching)
		if err != nil {
			return nil, err
		}
		p.tabular = append(p.tabular, matched[mapping.TabularMapping]{mapping: m, files: files})
	}
	for _, m := range c.cfg.OtherMappings {
		files, err := c.match(fsys, m.FileMatching)
		if err != nil {
			return nil, err
		}
		p.other = append(p.other, matched[mapping.OtherMapping]{mapping: m, files: files})
	}
	for _, m := range c.cfg.Attachments {
		files, err := c.match(fsys, m.FileMatching)
		if err != nil {
			return nil, err
		}
		p.attachments = append(p.attachments, matched[mapping.Attachment]{mapping: m, files: files})
	}
	for _, m := range c.cfg.Metadata {
		files, err := c.match(fsys, m.FileMatching)
		if err != nil {
			return nil, err
		}
		p.metadata = append(p.metadata, matched[mapping.Metadata]{mapping: m, files: files})
	}
	return p, nil
}

// match globs m.FilePattern in fsys and drops files whose base name starts
// with a match of m.ExcludeFilePattern. Paths are slash separated and sorted.
func (c *Converter) match(fsys fs.FS, m mapping.FileMatching) ([]string, error) {
	pattern := strings.TrimPrefix(filepath.ToSlash(m.FilePattern), "./")

	var exclude *regexp.Regexp
	if m.ExcludeFilePattern != "" {
		var err error
		if exclude, err = regexp.Compile(`^(?:` + m.ExcludeFilePattern + `)`); err != nil {
			return nil, fmt.Errorf("invalid exclude_file_pattern %q: %w", m.ExcludeFilePattern, err)
		}
	}

	c.logger.Info("Matching files",
		zap.String("file_pattern", m.FilePattern),
		zap.String("exclude_file_pattern", m.ExcludeFilePattern))

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid file_pattern %q: %w", m.FilePattern, err)
	}
	slices.Sort(matches)

	files := make([]string, 0, len(matches))
	for _, rel := range matches {
		if exclude != nil && exclude.MatchString(path.Base(rel)) {
			c.logger.Info("Skipping file matching exclude_file_pattern", zap.String("file", rel))
			continue
		}
		files = append(files, rel)
	}
	return files, nil
}

// frameGroup is the frames of one directory, in path order.
type frameGroup struct {
	dir   string
	files []string
}

// groupByDir groups sorted relative paths by parent directory, keeping the
// order in which directories first appear.
func groupByDir(files []string) []frameGroup {
	var groups []frameGroup
	index := map[string]int{}
	for _, rel := range files {
		dir := path.Dir(rel)
		i, ok := index[dir]
		if !ok {
			i = len(groups)
			index[dir] = i
			groups = append(groups, frameGroup{dir: dir})
		}
		groups[i].files = append(groups[i].files, rel)
	}
	return groups
}
