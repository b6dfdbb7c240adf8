// Package module resolves and fetches the source text for a worker's file
// argument. It is grounded on the ResolveModuleURL/GetModuleSource hook
// pair found on the older v8 binding in the example pack
// (_examples/espians-source/go/v8/worker.go), generalized from "resolve one
// entry module" to the resolve+cache behaviour spec.md's module loader
// collaborator names.
package module

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Resolver turns a worker's file argument (as passed to `new Worker(file)`)
// into an absolute URL. Fetcher retrieves the source text for a resolved
// URL. The default Loader uses ResolveFile/FetchFile, which treat file
// arguments as local filesystem paths relative to the directory of baseURL
// (or the working directory when baseURL is empty); embedders that
// need http(s) or other schemes supply their own Resolver/Fetcher.
type Resolver func(file, baseURL string) (string, error)
type Fetcher func(resolvedURL string) (string, error)

// Loader resolves and caches source text keyed by resolved URL. It never
// evicts: spec.md's scope is a single script-engine process's lifetime, not
// a long-running server, so an unbounded cache is the right tradeoff (see
// DESIGN.md).
type Loader struct {
	resolve Resolver
	fetch   Fetcher

	mu    sync.Mutex
	cache map[string]string
}

// NewLoader constructs a Loader. A nil resolver/fetcher falls back to
// resolving and fetching local files.
func NewLoader(resolve Resolver, fetch Fetcher) *Loader {
	if resolve == nil {
		resolve = ResolveFile
	}
	if fetch == nil {
		fetch = FetchFile
	}
	return &Loader{resolve: resolve, fetch: fetch, cache: make(map[string]string)}
}

// Load resolves file with an empty base URL (so a relative path is taken
// from the current working directory) and returns its source text and
// resolved URL, reusing a cached fetch if one already happened for that URL.
func (l *Loader) Load(file string) (source string, resolvedURL string, err error) {
	resolvedURL, err = l.resolve(file, "")
	if err != nil {
		return "", "", errors.Wrapf(err, "resolving module %q", file)
	}

	l.mu.Lock()
	cached, ok := l.cache[resolvedURL]
	l.mu.Unlock()
	if ok {
		return cached, resolvedURL, nil
	}

	source, err = l.fetch(resolvedURL)
	if err != nil {
		return "", "", errors.Wrapf(err, "fetching module %q", resolvedURL)
	}

	l.mu.Lock()
	l.cache[resolvedURL] = source
	l.mu.Unlock()

	return source, resolvedURL, nil
}

// ResolveFile resolves file as a local filesystem path, relative to baseURL
// (a file:// URL or empty) when file is itself relative.
func ResolveFile(file, baseURL string) (string, error) {
	if file == "" {
		return "", errors.New("empty module path")
	}
	if filepath.IsAbs(file) {
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(file)}).String(), nil
	}
	base := "."
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err == nil && u.Scheme == "file" {
			base = filepath.Dir(u.Path)
		}
	}
	abs, err := filepath.Abs(filepath.Join(base, file))
	if err != nil {
		return "", errors.Wrap(err, "resolving absolute path")
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// FetchFile reads the local file named by a file:// URL.
func FetchFile(resolvedURL string) (string, error) {
	u, err := url.Parse(resolvedURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing resolved URL")
	}
	if u.Scheme != "file" {
		return "", errors.Errorf("unsupported module scheme %q", u.Scheme)
	}
	f, err := os.Open(filepath.FromSlash(u.Path))
	if err != nil {
		return "", errors.Wrap(err, "opening module file")
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrap(err, "reading module file")
	}
	return string(b), nil
}
