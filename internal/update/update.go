// Package update checks GitHub releases for a newer distill binary
// and installs it in place. Installs are refused without a verified
// SHA-256 checksum.
package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	defaultRepo   = "distillpress/distill"
	binaryName    = "distill"
	cacheFileName = "update-check.json"
	cacheWindow   = time.Hour
	fetchTimeout  = 30 * time.Second
)

// Checker resolves the latest release for one repo. The zero value is
// not usable; construct with NewChecker.
type Checker struct {
	Repo     string // owner/name
	CacheDir string // where the check cache lives
	Client   *http.Client
}

// NewChecker returns a checker against the canonical repo, caching
// check results under cacheDir.
func NewChecker(cacheDir string) *Checker {
	return &Checker{
		Repo:     defaultRepo,
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: fetchTimeout},
	}
}

// Update describes an available newer release.
type Update struct {
	Current string
	Latest  string // release tag, e.g. v0.3.0
	checker *Checker
}

// release mirrors the GitHub release API response.
type release struct {
	TagName string `json:"tag_name"`
	Body    string `json:"body"`
	Assets  []struct {
		Name               string `json:"name"`
		Size               int64  `json:"size"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

type checkCache struct {
	CheckedAt time.Time `json:"checked_at"`
	Tag       string    `json:"tag"`
}

// Check returns the available update, or nil when current is already
// the latest release. Results are cached for an hour unless force is
// set. Dev builds (non-semver versions) always report the latest
// release so the caller can decide.
func (c *Checker) Check(current string, force bool) (*Update, error) {
	tag := ""
	if !force {
		tag = c.cachedTag()
	}
	if tag == "" {
		rel, err := c.latestRelease()
		if err != nil {
			return nil, fmt.Errorf("checking for updates: %w", err)
		}
		tag = rel.TagName
		c.saveCache(tag)
	}

	if !IsDevBuild(current) && !isNewer(tag, current) {
		return nil, nil
	}
	return &Update{Current: current, Latest: tag, checker: c}, nil
}

// Install downloads the release asset for this platform, verifies its
// checksum, and swaps the running binary. progress, when non-nil, is
// called with downloaded and total byte counts.
func (u *Update) Install(progress func(downloaded, total int64)) error {
	rel, err := u.checker.latestRelease()
	if err != nil {
		return fmt.Errorf("resolving release: %w", err)
	}

	assetName := fmt.Sprintf("%s_%s_%s_%s%s",
		binaryName, strings.TrimPrefix(rel.TagName, "v"),
		runtime.GOOS, runtime.GOARCH, archiveExt())
	var assetURL, sumsURL string
	var assetSize int64
	for _, a := range rel.Assets {
		switch a.Name {
		case assetName:
			assetURL = a.BrowserDownloadURL
			assetSize = a.Size
		case "SHA256SUMS", "checksums.txt":
			sumsURL = a.BrowserDownloadURL
		}
	}
	if assetURL == "" {
		return fmt.Errorf("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	want := ""
	if sumsURL != "" {
		want = u.checker.fetchChecksum(sumsURL, assetName)
	}
	if want == "" {
		want = checksumFromText(rel.Body, assetName)
	}
	if want == "" {
		return fmt.Errorf("no checksum for %s, refusing unverified binary", assetName)
	}

	tmpDir, err := os.MkdirTemp("", "distill-update-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, assetName)
	got, err := u.checker.download(assetURL, archivePath, assetSize, progress)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", assetName, err)
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s",
			assetName, want, got)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current binary: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("resolving binary path: %w", err)
	}
	dst := filepath.Join(filepath.Dir(exe), exeName())
	return installArchive(archivePath, dst)
}

func archiveExt() string {
	if runtime.GOOS == "windows" {
		return ".zip"
	}
	return ".tar.gz"
}

func exeName() string {
	if runtime.GOOS == "windows" {
		return binaryName + ".exe"
	}
	return binaryName
}

func (c *Checker) latestRelease() (*release, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", c.Repo)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", binaryName+"-update")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Checker) cachedTag() string {
	data, err := os.ReadFile(filepath.Join(c.CacheDir, cacheFileName))
	if err != nil {
		return ""
	}
	var cached checkCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return ""
	}
	if time.Since(cached.CheckedAt) >= cacheWindow {
		return ""
	}
	return cached.Tag
}

func (c *Checker) saveCache(tag string) {
	data, err := json.Marshal(checkCache{CheckedAt: time.Now(), Tag: tag})
	if err != nil {
		return
	}
	_ = os.MkdirAll(c.CacheDir, 0o755)
	_ = os.WriteFile(filepath.Join(c.CacheDir, cacheFileName), data, 0o600)
}

// fetchChecksum pulls a SHA256SUMS-style file and extracts the line
// for assetName. Failures return "" so the release body can serve as
// fallback.
func (c *Checker) fetchChecksum(url, assetName string) string {
	resp, err := c.Client.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	return checksumFromText(string(body), assetName)
}

var hexDigestRe = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// checksumFromText scans "digest  filename" lines for assetName.
func checksumFromText(text, assetName string) string {
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") != assetName {
			continue
		}
		if hexDigestRe.MatchString(fields[0]) {
			return strings.ToLower(fields[0])
		}
	}
	return ""
}

// download streams url to dest, returning the SHA-256 of the bytes
// written.
func (c *Checker) download(
	url, dest string, total int64, progress func(downloaded, total int64),
) (string, error) {
	client := &http.Client{} // no overall timeout; large assets
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hasher := sha256.New()
	var done int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := io.MultiWriter(out, hasher).Write(buf[:n]); err != nil {
				return "", err
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// installArchive extracts the platform binary from the verified
// archive and swaps it into place.
func installArchive(archivePath, dst string) error {
	extractDir, err := os.MkdirTemp("", "distill-extract-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(extractDir)

	if strings.HasSuffix(archivePath, ".zip") {
		err = extractZip(archivePath, extractDir)
	} else {
		err = extractTarGz(archivePath, extractDir)
	}
	if err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}

	src := filepath.Join(extractDir, exeName())
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("binary %s not found in archive", exeName())
	}
	return swapBinary(src, dst)
}

// swapBinary replaces dst with src using rename-then-copy, which
// works while dst is the running executable on every platform.
func swapBinary(src, dst string) error {
	backup := dst + ".old"
	os.Remove(backup)

	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, backup); err != nil {
			return fmt.Errorf("backing up current binary: %w", err)
		}
	}
	if err := copyFile(src, dst); err != nil {
		if rbErr := os.Rename(backup, dst); rbErr != nil {
			return fmt.Errorf("installing: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("installing: %w", err)
	}
	if err := os.Chmod(dst, 0o755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	os.Remove(backup)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := containedPath(destDir, hdr.Name)
		if err != nil {
			return fmt.Errorf("tar entry %q: %w", hdr.Name, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
		// Links are silently dropped; release archives carry none.
	}
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := containedPath(destDir, f.Name)
		if err != nil {
			return fmt.Errorf("zip entry %q: %w", f.Name, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode.Perm()|0o600)
}

// containedPath joins name under destDir, rejecting absolute paths
// and traversal outside destDir.
func containedPath(destDir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute path not allowed")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal not allowed")
	}
	abs, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(abs, clean)
	if target != abs && !strings.HasPrefix(target, abs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes destination directory")
	}
	return target, nil
}

var gitDescribeRe = regexp.MustCompile(`-\d+-g[0-9a-f]+(-dirty)?$`)

// IsDevBuild reports whether v is not a released semver version:
// "dev", "unknown", or a git-describe suffix.
func IsDevBuild(v string) bool {
	v = strings.TrimPrefix(v, "v")
	if gitDescribeRe.MatchString(v) {
		return true
	}
	return !semver.IsValid("v" + v)
}

// isNewer reports whether version a is strictly newer than b.
// Non-semver inputs compare as not newer.
func isNewer(a, b string) bool {
	av := "v" + strings.TrimPrefix(a, "v")
	bv := "v" + strings.TrimPrefix(b, "v")
	if !semver.IsValid(av) || !semver.IsValid(bv) {
		return false
	}
	return semver.Compare(av, bv) > 0
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
