// Command download fetches release artifacts for the wasm backend, such as
// python.wasm and its standard library archive:
//
//	go run ./internal/tools/download -sha256 <hex> <url> <output>
//
// An existing output file is left alone.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/creek/internal/logger"
)

var errChecksum = errors.New("checksum mismatch")

func main() {
	sum := flag.String("sha256", "", "Expected SHA-256 of the download (hex)")
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: download [-sha256 hex] <url> <output>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	url, output := flag.Arg(0), flag.Arg(1)
	fetched, err := fetch(ctx, http.DefaultClient, url, output, *sum)
	if err != nil {
		logger.Error("download failed", "url", url, logger.KeyError, err.Error())
		os.Exit(1)
	}
	if fetched {
		logger.Info("downloaded", "url", url, logger.KeyPath, output)
	}
}

// fetch downloads url to output unless output exists. The file only appears
// once complete and, when want is set, verified.
func fetch(ctx context.Context, client *http.Client, url, output, want string) (bool, error) {
	if _, err := os.Stat(output); err == nil {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}

	if want != "" {
		if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, want) {
			return false, fmt.Errorf("%w: got %s, want %s", errChecksum, got, want)
		}
	}
	return true, os.Rename(tmp.Name(), output)
}
