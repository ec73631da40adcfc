package student

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	ConfigFile    = "config.json"
	TokenizerFile = "tokenizer.json"
	WeightsFile   = "model.safetensors"
)

// Downloader caches a HuggingFace model's files locally.
type Downloader struct {
	baseURL   string
	modelName string
	cacheDir  string
	client    *http.Client
}

func NewDownloader(client *http.Client, baseURL, modelName, cacheDir string) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		cacheDir:  cacheDir,
		client:    client,
	}
}

// DownloadModel fetches missing files, or all of them when force is set, and
// returns the directory holding them.
func (d *Downloader) DownloadModel(ctx context.Context, force bool) (string, error) {
	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	files := []string{ConfigFile, TokenizerFile, WeightsFile}

	if !force && d.Cached() {
		if DebugLog != nil {
			DebugLog("model %s already cached at %s", d.modelName, d.cacheDir)
		}
		return d.cacheDir, nil
	}

	base := fmt.Sprintf("%s/%s/resolve/main", d.baseURL, d.modelName)
	for _, name := range files {
		dest := filepath.Join(d.cacheDir, name)
		if !force && fileExists(dest) {
			continue
		}
		if DebugLog != nil {
			DebugLog("downloading %s/%s", base, name)
		}
		if err := d.downloadFile(ctx, base+"/"+name, dest); err != nil {
			return "", fmt.Errorf("failed to download %s: %w", name, err)
		}
	}

	return d.cacheDir, nil
}

func (d *Downloader) Cached() bool {
	for _, name := range []string{ConfigFile, TokenizerFile, WeightsFile} {
		if !fileExists(filepath.Join(d.cacheDir, name)) {
			return false
		}
	}
	return true
}

func (d *Downloader) downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
