// Package vault serves a directory of markdown documents to the extractor
// and the query coordinator.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/msageha/taskscope/internal/extract"
	"github.com/msageha/taskscope/internal/logging"
)

var ErrOutsideRoot = errors.New("path is outside the vault root")

// listItem matches a (possibly quoted) list item and captures its checkbox character.
var listItem = regexp.MustCompile(`^[\t ]*(?:>[\t ]*)*(?:[-*+]|\d+[.)])[\t ]*(?:\[(.)\])?`)

type Options struct {
	// Extensions are matched case-insensitively and include the dot.
	Extensions    []string
	IncludeHidden bool
	// ReadsPerSecond throttles Read; 0 leaves reads unthrottled.
	ReadsPerSecond float64
	ReadBurst      int
	Logger         *logging.Logger
}

type Vault struct {
	root          string
	exts          map[string]bool
	includeHidden bool
	limiter       *rate.Limiter
	logger        *logging.Logger
}

func New(root string, opts Options) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault %s: not a directory", abs)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".md"}
	}
	v := &Vault{
		root:          abs,
		exts:          make(map[string]bool, len(exts)),
		includeHidden: opts.IncludeHidden,
		logger:        opts.Logger.With("vault"),
	}
	for _, e := range exts {
		v.exts[strings.ToLower(e)] = true
	}
	if opts.ReadsPerSecond > 0 {
		burst := opts.ReadBurst
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(opts.ReadsPerSecond), burst)
	}
	return v, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string {
	return v.root
}

// List returns the slash-separated paths of every eligible document in
// lexical order.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == v.root {
				return err
			}
			v.logger.Warnf("walk %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == v.root {
			return nil
		}
		if d.IsDir() {
			if !v.includeHidden && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if v.Matches(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list vault %s: %w", v.root, err)
	}
	return paths, nil
}

// Matches reports whether a vault path names an eligible document.
func (v *Vault) Matches(docPath string) bool {
	if !v.exts[strings.ToLower(path.Ext(docPath))] {
		return false
	}
	return v.IncludesDir(docPath)
}

// IncludesDir reports whether nothing along the vault path rel is hidden.
func (v *Vault) IncludesDir(rel string) bool {
	if v.includeHidden {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if isHidden(seg) {
			return false
		}
	}
	return true
}

// Read returns the content of a document, waiting on the read limiter first.
func (v *Vault) Read(ctx context.Context, docPath string) (string, error) {
	abs, err := v.Abs(docPath)
	if err != nil {
		return "", err
	}
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("throttle read %s: %w", docPath, err)
		}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Abs maps a vault path to a filesystem path.
func (v *Vault) Abs(docPath string) (string, error) {
	slashed := filepath.ToSlash(docPath)
	clean := path.Clean("/" + slashed)
	if clean == "/" || strings.HasPrefix(slashed, "/") || hasDotDot(slashed) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, docPath)
	}
	return filepath.Join(v.root, filepath.FromSlash(clean[1:])), nil
}

// Rel maps a filesystem path to a vault path.
func (v *Vault) Rel(fsPath string) (string, error) {
	abs, err := filepath.Abs(fsPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, fsPath)
	}
	return filepath.ToSlash(rel), nil
}

// Hint indexes list items and front matter the way a host metadata cache would.
func (v *Vault) Hint(_ context.Context, docPath, content string) (*extract.Hint, bool) {
	h := &extract.Hint{}
	for i, line := range strings.Split(content, "\n") {
		m := listItem.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
		if m == nil {
			continue
		}
		h.ListItems = append(h.ListItems, extract.ListItem{Line: i, Task: m[1]})
	}
	meta, err := extract.FrontMatter(content)
	if err != nil {
		v.logger.Warnf("front matter %s: %v", docPath, err)
	}
	h.FrontMatter = meta
	return h, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
