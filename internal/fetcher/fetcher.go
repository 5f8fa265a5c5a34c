// Package fetcher resolves input locations (local paths, HTTP and FTP URLs)
// to local files and reads tabular inputs from CSV, XLSX and ZIP sources.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Resolver maps an input location to a readable local file. Remote inputs
// are downloaded once into CacheDir and reused by later runs.
type Resolver struct {
	CacheDir string
	HTTP     Fetcher
	FTP      Fetcher
}

// Resolve returns a local path for location.
func (r *Resolver) Resolve(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", eris.New("fetcher: empty input location")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Scheme == "file" || len(u.Scheme) == 1 {
		p := location
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		if _, statErr := os.Stat(p); statErr != nil {
			return "", eris.Wrapf(statErr, "fetcher: stat %s", p)
		}
		return p, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}

	dest := filepath.Join(r.CacheDir, cacheName(location, u.Path))
	if info, statErr := os.Stat(dest); statErr == nil && info.Size() > 0 {
		zap.L().Debug("fetcher: using cached input", zap.String("location", location), zap.String("path", dest))
		return dest, nil
	}

	if err := os.MkdirAll(r.CacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}

	tmp := dest + ".part"
	n, err := f.DownloadToFile(ctx, location, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "fetcher: download %s", location)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "fetcher: finalize download")
	}

	zap.L().Info("fetcher: downloaded input",
		zap.String("location", location),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// cacheName keeps the file extension so readers can dispatch on it.
func cacheName(location, urlPath string) string {
	sum := sha256.Sum256([]byte(location))
	base := path.Base(urlPath)
	if base == "." || base == "/" {
		base = "input"
	}
	base = strings.NewReplacer("/", "_", "\\", "_").Replace(base)
	return hex.EncodeToString(sum[:6]) + "-" + base
}

func copyToFile(rc io.ReadCloser, dest string) (int64, error) {
	defer rc.Close() //nolint:errcheck

	file, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
