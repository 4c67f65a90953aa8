package archive

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tompei-viewer/constants"
	"tompei-viewer/utils"

	"github.com/dustin/go-humanize"
	"github.com/gojektech/heimdall/v6/httpclient"
	"go.uber.org/zap"
)

// Manifest records what was downloaded so a later run can validate it.
type Manifest struct {
	URL        string `json:"url"`
	ETag       string `json:"etag,omitempty"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
	Downloaded int64  `json:"downloaded"`
}

func (manifest *Manifest) String() string {
	b, _ := json.Marshal(manifest)
	return string(b)
}

// Cache downloads the annotation archive once and keeps it extracted.
type Cache struct {
	url        string
	dir        string
	revalidate bool
	httpClient *httpclient.Client
	logger     *zap.Logger

	mu          sync.Mutex
	extractPath string
}

func NewCache(url, dir string, timeout time.Duration, retryCount int, revalidate bool, logger *zap.Logger) *Cache {
	return &Cache{
		url:        url,
		dir:        dir,
		revalidate: revalidate,
		httpClient: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(retryCount),
		),
		logger: logger,
	}
}

func (cache *Cache) zipPath() string {
	return filepath.Join(cache.dir, constants.ArchiveName)
}

func (cache *Cache) manifestPath() string {
	return cache.zipPath() + ".json"
}

// ExtractPath is where the archive is unpacked.
func (cache *Cache) ExtractPath() string {
	return filepath.Join(cache.dir, constants.ArchiveExtracted)
}

// Ensure makes the archive available on disk and returns the extraction
// directory. A successful result is memoized for the life of the process.
func (cache *Cache) Ensure(ctx context.Context) (string, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.extractPath != "" {
		return cache.extractPath, nil
	}
	if err := os.MkdirAll(cache.dir, 0755); err != nil {
		return "", err
	}

	sum, err := cache.ensureZip(ctx)
	if err != nil {
		return "", err
	}
	if err := cache.ensureExtracted(sum); err != nil {
		return "", err
	}
	cache.extractPath = cache.ExtractPath()
	return cache.extractPath, nil
}

// ensureZip returns the sha256 of a valid local zip, downloading it when
// missing, corrupt or changed upstream.
func (cache *Cache) ensureZip(ctx context.Context) (string, error) {
	if utils.FileExists(cache.zipPath()) {
		sum, reusable := cache.checkLocal(ctx)
		if reusable {
			return sum, nil
		}
	}

	manifest, err := cache.download(ctx)
	if err != nil {
		return "", err
	}
	return manifest.SHA256, nil
}

func (cache *Cache) checkLocal(ctx context.Context) (string, bool) {
	sum, err := utils.HashFile(cache.zipPath())
	if err != nil {
		cache.logger.Warn("Cannot hash cached archive", zap.Error(err))
		return "", false
	}

	manifest, err := cache.readManifest()
	if err != nil {
		// a zip without a manifest is adopted if it opens
		if !isZip(cache.zipPath()) {
			cache.logger.Warn("Cached archive is not a valid zip", zap.String("path", cache.zipPath()))
			return "", false
		}
		info, err := os.Stat(cache.zipPath())
		if err != nil {
			cache.logger.Warn("Cannot stat cached archive", zap.Error(err))
			return "", false
		}
		adopted := Manifest{URL: cache.url, Size: info.Size(), SHA256: sum, Downloaded: time.Now().Unix()}
		utils.LogError(cache.writeManifest(adopted))
		return sum, true
	}

	if manifest.URL != cache.url || manifest.SHA256 != sum {
		cache.logger.Warn("Cached archive does not match its manifest",
			zap.String("expected", manifest.SHA256), zap.String("actual", sum))
		return "", false
	}
	if !cache.revalidate {
		return sum, true
	}

	etag, err := cache.head(ctx)
	if err != nil {
		cache.logger.Warn("Cannot revalidate archive, using cached copy", zap.Error(err))
		return sum, true
	}
	if etag != "" && manifest.ETag != "" && etag != manifest.ETag {
		cache.logger.Info("Archive changed upstream",
			zap.String("cached_etag", manifest.ETag), zap.String("etag", etag))
		return "", false
	}
	return sum, true
}

func (cache *Cache) head(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cache.url, nil)
	if err != nil {
		return "", err
	}
	res, err := cache.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.New(res.Status)
	}
	return res.Header.Get("ETag"), nil
}

func (cache *Cache) download(ctx context.Context) (*Manifest, error) {
	cache.logger.Info("Downloading archive", zap.String("url", cache.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cache.url, nil)
	if err != nil {
		return nil, err
	}
	res, err := cache.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download archive: %s", res.Status)
	}

	part := cache.zipPath() + ".part"
	out, err := os.Create(part)
	if err != nil {
		return nil, err
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), res.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(part)
		return nil, fmt.Errorf("download archive: %w", err)
	}
	if !isZip(part) {
		os.Remove(part)
		return nil, errors.New("download archive: response is not a zip file")
	}
	if err := os.Rename(part, cache.zipPath()); err != nil {
		return nil, err
	}

	manifest := Manifest{
		URL:        cache.url,
		ETag:       res.Header.Get("ETag"),
		Size:       size,
		SHA256:     hex.EncodeToString(hash.Sum(nil)),
		Downloaded: time.Now().Unix(),
	}
	if err := cache.writeManifest(manifest); err != nil {
		return nil, err
	}
	cache.logger.Info("Archive downloaded", zap.String("size", humanize.Bytes(uint64(size))))
	return &manifest, nil
}

func (cache *Cache) ensureExtracted(sum string) error {
	extract := cache.ExtractPath()
	marker := filepath.Join(extract, constants.MarkerExtracted)
	if utils.ReadFileAsString(marker) == sum {
		return nil
	}

	if err := os.RemoveAll(extract); err != nil {
		return err
	}
	count, err := utils.ExtractZip(cache.zipPath(), extract)
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	cache.logger.Info("Archive extracted", zap.String("path", extract), zap.Int("files", count))
	return os.WriteFile(marker, []byte(sum), 0644)
}

func (cache *Cache) readManifest() (*Manifest, error) {
	b, err := os.ReadFile(cache.manifestPath())
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(b, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (cache *Cache) writeManifest(manifest Manifest) error {
	return os.WriteFile(cache.manifestPath(), []byte(manifest.String()), 0644)
}

func isZip(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	r.Close()
	return true
}
