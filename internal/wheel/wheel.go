// Package wheel installs pure-Python wheels from a PyPI-compatible index
// into a directory the interpreter puts on its search path.
package wheel

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caffeineduck/creek/internal/logger"
)

// DefaultIndex is the PyPI JSON API root.
const DefaultIndex = "https://pypi.org/pypi"

var (
	// ErrNotFound is returned when the index has no such package or version.
	ErrNotFound = errors.New("package not found")
	// ErrNoPureWheel is returned when a release ships no py3-none-any wheel.
	ErrNoPureWheel = errors.New("no pure Python wheel available")
)

// Package is an installed distribution.
type Package struct {
	Name    string
	Version string
}

// Installer manages one package directory.
type Installer struct {
	dir    string
	index  string
	client *http.Client
}

// Option configures an Installer.
type Option func(*Installer)

// WithIndex sets the JSON API root, e.g. a private mirror.
func WithIndex(url string) Option {
	return func(i *Installer) {
		i.index = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets the client used for index and download requests.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Installer) {
		i.client = c
	}
}

// NewInstaller returns an Installer writing into dir.
func NewInstaller(dir string, opts ...Option) *Installer {
	i := &Installer{dir: dir, index: DefaultIndex, client: http.DefaultClient}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Dir returns the package directory.
func (i *Installer) Dir() string {
	return i.dir
}

// ParseSpec splits "name==1.2" into name and pinned version. Range
// operators are accepted and resolve to the latest release.
func ParseSpec(spec string) (name, version string) {
	spec = strings.TrimSpace(spec)
	if n, v, ok := strings.Cut(spec, "=="); ok {
		return strings.TrimSpace(n), strings.TrimSpace(v)
	}
	for _, op := range []string{">=", "<=", "~=", "!=", ">", "<"} {
		if idx := strings.Index(spec, op); idx != -1 {
			return strings.TrimSpace(spec[:idx]), ""
		}
	}
	return spec, ""
}

type release struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	URLs []struct {
		PackageType string `json:"packagetype"`
		Filename    string `json:"filename"`
		URL         string `json:"url"`
	} `json:"urls"`
}

// Install fetches spec from the index and unpacks its wheel.
func (i *Installer) Install(ctx context.Context, spec string) (Package, error) {
	name, version := ParseSpec(spec)
	if name == "" {
		return Package{}, fmt.Errorf("invalid package spec %q", spec)
	}

	rel, err := i.lookup(ctx, name, version)
	if err != nil {
		return Package{}, err
	}

	url := ""
	for _, u := range rel.URLs {
		f := strings.ToLower(u.Filename)
		if u.PackageType == "bdist_wheel" && (strings.Contains(f, "-py3-none-any") || strings.Contains(f, "-py2.py3-none-any")) {
			url = u.URL
			break
		}
	}
	if url == "" {
		return Package{}, fmt.Errorf("%s %s: %w", rel.Info.Name, rel.Info.Version, ErrNoPureWheel)
	}

	logger.Info("downloading wheel", "package", rel.Info.Name, "version", rel.Info.Version)
	path, err := i.download(ctx, url)
	if err != nil {
		return Package{}, err
	}
	defer os.Remove(path)

	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return Package{}, fmt.Errorf("create package dir: %w", err)
	}
	if err := extract(path, i.dir); err != nil {
		return Package{}, fmt.Errorf("extract %s: %w", rel.Info.Name, err)
	}
	return Package{Name: rel.Info.Name, Version: rel.Info.Version}, nil
}

func (i *Installer) lookup(ctx context.Context, name, version string) (*release, error) {
	url := fmt.Sprintf("%s/%s/json", i.index, name)
	if version != "" {
		url = fmt.Sprintf("%s/%s/%s/json", i.index, name, version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch package info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("index returned status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("parse package info: %w", err)
	}
	return &rel, nil
}

func (i *Installer) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download wheel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download wheel: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "creek-*.whl")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download wheel: %w", err)
	}
	return tmp.Name(), nil
}

func extract(wheelPath, dest string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".so", ".pyd", ".dylib":
			return fmt.Errorf("wheel contains native code: %s", filepath.Base(f.Name))
		}
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in wheel: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// List returns installed packages sorted by name, read from their
// .dist-info directories.
func (i *Installer) List() ([]Package, error) {
	entries, err := os.ReadDir(i.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pkgs []Package
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".dist-info")
		if !e.IsDir() || !ok {
			continue
		}
		name, version, _ := strings.Cut(base, "-")
		pkgs = append(pkgs, Package{Name: name, Version: version})
	}
	sort.Slice(pkgs, func(a, b int) bool { return strings.ToLower(pkgs[a].Name) < strings.ToLower(pkgs[b].Name) })
	return pkgs, nil
}

// Remove deletes a package using the file list in its RECORD.
func (i *Installer) Remove(name string) error {
	pkgs, err := i.List()
	if err != nil {
		return err
	}

	norm := normalize(name)
	for _, p := range pkgs {
		if normalize(p.Name) != norm {
			continue
		}
		distInfo := filepath.Join(i.dir, p.Name+"-"+p.Version+".dist-info")
		if err := i.removeRecorded(distInfo); err != nil {
			return err
		}
		return os.RemoveAll(distInfo)
	}
	return fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (i *Installer) removeRecorded(distInfo string) error {
	data, err := os.ReadFile(filepath.Join(distInfo, "RECORD"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	root, err := filepath.Abs(i.dir)
	if err != nil {
		return err
	}
	dirs := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		rel, _, _ := strings.Cut(line, ",")
		if rel == "" {
			continue
		}
		target := filepath.Join(root, rel)
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			continue
		}
		os.Remove(target)
		dirs[filepath.Dir(target)] = true
	}
	for dir := range dirs {
		// Only empty directories go; shared namespace dirs stay.
		os.Remove(dir)
	}
	return nil
}

func normalize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(name))
}
