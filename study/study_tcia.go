package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"tompei-viewer/constants"
	"tompei-viewer/utils"

	"github.com/dustin/go-humanize"
	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"
	"go.uber.org/zap"
)

// TCIAClient talks to the NBIA search and download API.
type TCIAClient struct {
	uri        string
	httpClient *httpclient.Client
	logger     *zap.Logger
}

func NewTCIAClient(uri string, timeout time.Duration, retryCount int, logger *zap.Logger) *TCIAClient {
	backoff := heimdall.NewConstantBackoff(500*time.Millisecond, 250*time.Millisecond)
	httpClient := httpclient.NewClient(
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(retryCount),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
	)

	return &TCIAClient{
		uri:        uri,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetSeries lists every series of collection.
func (tcia *TCIAClient) GetSeries(ctx context.Context, collection string) ([]Series, error) {
	query := url.Values{}
	query.Set("Collection", collection)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/getSeries?%s", tcia.uri, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	res, err := tcia.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getSeries %s: %w", collection, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	series := make([]Series, 0)
	if err := json.NewDecoder(res.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("parse series of %s: %w", collection, err)
	}
	tcia.logger.Info("Fetched series metadata",
		zap.String("collection", collection), zap.Int("series", len(series)))
	return series, nil
}

// DownloadSeries fetches each series into dir/<uid>. A series that already
// carries a completion marker is skipped.
func (tcia *TCIAClient) DownloadSeries(ctx context.Context, uids []string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, uid := range uids {
		target := filepath.Join(dir, uid)
		if utils.FileExists(filepath.Join(target, constants.MarkerComplete)) {
			continue
		}
		if err := tcia.downloadOne(ctx, uid, target); err != nil {
			return fmt.Errorf("download series %s: %w", uid, err)
		}
	}
	return nil
}

func (tcia *TCIAClient) downloadOne(ctx context.Context, uid, target string) error {
	query := url.Values{}
	query.Set("SeriesInstanceUID", uid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/getImage?%s", tcia.uri, query.Encode()), nil)
	if err != nil {
		return err
	}
	res, err := tcia.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.New(res.Status)
	}

	zipPath := target + ".zip.part"
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	size, err := io.Copy(out, res.Body)
	out.Close()
	defer os.Remove(zipPath)
	if err != nil {
		return err
	}

	// a partial extraction from an earlier attempt is discarded
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	count, err := utils.ExtractZip(zipPath, target)
	if err != nil {
		return err
	}
	tcia.logger.Info("Downloaded series",
		zap.String("series_uid", uid),
		zap.String("size", humanize.Bytes(uint64(size))),
		zap.Int("files", count))

	return os.WriteFile(filepath.Join(target, constants.MarkerComplete), []byte(time.Now().UTC().Format(time.RFC3339)), 0644)
}
