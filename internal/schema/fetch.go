package schema

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
)

// Repository is a source archive of message definitions. URL may contain
// the {distro} placeholder.
type Repository struct {
	Name string
	URL  string
}

// ArchiveURL returns the download URL for distro.
func (r Repository) ArchiveURL(distro string) string {
	return strings.ReplaceAll(r.URL, "{distro}", distro)
}

// Repositories are the archives fetched by default.
var Repositories = []Repository{
	{Name: "rcl_interfaces", URL: "https://github.com/ros2/rcl_interfaces/archive/refs/heads/{distro}.zip"},
	{Name: "common_interfaces", URL: "https://github.com/ros2/common_interfaces/archive/refs/heads/{distro}.zip"},
	{Name: "geometry2", URL: "https://github.com/ros2/geometry2/archive/refs/heads/{distro}.zip"},
	{Name: "foxglove-sdk", URL: "https://github.com/foxglove/foxglove-sdk/archive/refs/tags/sdk/v0.14.3.zip"},
}

// Fetcher downloads repository archives into the distro cache.
type Fetcher struct {
	cacheDir     string
	client       *http.Client
	repositories []Repository
	attempts     uint
	delay        time.Duration
	logger       *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRepositories replaces the default repository list.
func WithRepositories(repos []Repository) FetcherOption {
	return func(f *Fetcher) { f.repositories = repos }
}

// WithAttempts sets the number of download attempts per repository.
func WithAttempts(n uint) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithTimeout sets the timeout of a single download.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

// WithRetryDelay sets the initial backoff delay between attempts.
func WithRetryDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.delay = d }
}

// NewFetcher creates a fetcher writing below cacheDir.
func NewFetcher(cacheDir string, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cacheDir:     cacheDir,
		client:       &http.Client{Timeout: 120 * time.Second},
		repositories: Repositories,
		attempts:     3,
		delay:        time.Second,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll makes sure every repository is cached for distro. Failures of
// individual repositories are joined into the returned error.
func (f *Fetcher) FetchAll(ctx context.Context, distro string) error {
	f.logger.Debug("Fetching message definitions",
		zap.String("distro", distro),
		zap.String("cache_dir", f.cacheDir))

	var errs []error
	fetched := 0
	for _, repo := range f.repositories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Fetch(ctx, repo, distro); err != nil {
			f.logger.Error("Failed to fetch repository", zap.String("repository", repo.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		fetched++
	}

	f.logger.Debug("Fetched repositories",
		zap.Int("succeeded", fetched),
		zap.Int("total", len(f.repositories)))
	return errors.Join(errs...)
}

// Fetch downloads and extracts repo unless it is already cached.
func (f *Fetcher) Fetch(ctx context.Context, repo Repository, distro string) error {
	if n := CachedMsgFiles(f.cacheDir, distro, repo.Name); n > 0 {
		f.logger.Debug("Repository already cached",
			zap.String("repository", repo.Name),
			zap.String("distro", distro),
			zap.Int("msg_files", n))
		return nil
	}

	distroDir := filepath.Join(f.cacheDir, distro)
	if err := os.MkdirAll(distroDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	url := repo.ArchiveURL(distro)
	tmp, err := os.CreateTemp("", repo.Name+"-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	err = retry.Do(
		func() error {
			return f.download(ctx, repo.Name, url, tmp)
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(apperrors.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("Retrying download",
				zap.String("repository", repo.Name),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}

	extractDir, err := os.MkdirTemp("", repo.Name+"-extract-*")
	if err != nil {
		return fmt.Errorf("create extract dir: %w", err)
	}
	defer os.RemoveAll(extractDir)

	if err := extractZip(tmp.Name(), extractDir); err != nil {
		return &apperrors.FetchError{Repository: repo.Name, URL: url, Err: fmt.Errorf("extract: %w", err)}
	}

	src, err := findExtractedRoot(extractDir, repo.Name)
	if err != nil {
		return &apperrors.FetchError{Repository: repo.Name, URL: url, Err: err}
	}

	dst := filepath.Join(distroDir, repo.Name)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	if err := moveDir(src, dst); err != nil {
		return fmt.Errorf("move %s into cache: %w", repo.Name, err)
	}

	f.logger.Info("Cached repository",
		zap.String("repository", repo.Name),
		zap.String("distro", distro),
		zap.Int("msg_files", CachedMsgFiles(f.cacheDir, distro, repo.Name)))
	return nil
}

func (f *Fetcher) download(ctx context.Context, repo, url string, dst *os.File) error {
	f.logger.Info("Downloading", zap.String("repository", repo), zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(&apperrors.FetchError{Repository: repo, URL: url, Err: err})
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return &apperrors.FetchError{Repository: repo, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &apperrors.FetchError{
			Repository: repo,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := dst.Truncate(0); err != nil {
		return err
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return &apperrors.FetchError{Repository: repo, URL: url, Err: err}
	}
	return nil
}

func extractZip(archive, dir string) error {
	// Non-local names are rejected per entry below.
	zr, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer zr.Close()

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, zf := range zr.File {
		target := filepath.Join(dir, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("illegal path in archive: %s", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(zf, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(zf *zip.File, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// findExtractedRoot returns the top-level directory of an archive whose name
// contains repo, e.g. "common_interfaces-jazzy".
func findExtractedRoot(dir, repo string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), repo) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("could not find extracted directory for %s", repo)
}

// moveDir renames src to dst, copying when they are on different devices.
func moveDir(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return os.CopyFS(dst, os.DirFS(src))
}

// CachedMsgFiles counts the .msg files of a cached repository. Zero means the
// repository is not cached.
func CachedMsgFiles(cacheDir, distro, repo string) int {
	return countMsgFiles(filepath.Join(cacheDir, distro, repo))
}

func countMsgFiles(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && filepath.Ext(d.Name()) == ".msg" {
			n++
		}
		return nil
	})
	return n
}

// CachedRepository describes one repository in the cache.
type CachedRepository struct {
	Distro     string
	Repository string
	MsgFiles   int
}

// List returns the cached repositories of every distro, sorted by distro and
// name. A missing cache directory yields no entries.
func List(cacheDir string) ([]CachedRepository, error) {
	distros, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []CachedRepository
	for _, d := range distros {
		if !d.IsDir() {
			continue
		}
		repos, err := os.ReadDir(filepath.Join(cacheDir, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			if !r.IsDir() {
				continue
			}
			out = append(out, CachedRepository{
				Distro:     d.Name(),
				Repository: r.Name(),
				MsgFiles:   countMsgFiles(filepath.Join(cacheDir, d.Name(), r.Name())),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distro != out[j].Distro {
			return out[i].Distro < out[j].Distro
		}
		return out[i].Repository < out[j].Repository
	})
	return out, nil
}
