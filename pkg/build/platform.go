package build

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Platform names the host family the artifacts are produced for.
type Platform string

const (
	Linux   Platform = "linux"
	Darwin  Platform = "darwin"
	Windows Platform = "windows"
)

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform(runtime.GOOS)
}

// UnsupportedPlatformError is returned for platforms without a known artifact layout.
type UnsupportedPlatformError struct {
	Platform Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("platform %q is not currently supported", string(e.Platform))
}

// ArchiveExt is the extension of the distributable produced by packaging.
func (p Platform) ArchiveExt() (string, error) {
	switch p {
	case Linux:
		return ".tar.gz", nil
	case Darwin:
		return ".dmg", nil
	case Windows:
		return ".zip", nil
	}
	return "", &UnsupportedPlatformError{Platform: p}
}

// ArtifactName is the cache file name of the package built from rev.
func (p Platform) ArtifactName(rev string) (string, error) {
	ext, err := p.ArchiveExt()
	if err != nil {
		return "", err
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev + ext, nil
}

// BinaryPath is the application binary inside objdir after a build.
func (p Platform) BinaryPath(objdir string) (string, error) {
	dist := filepath.Join(objdir, "dist")
	switch p {
	case Darwin:
		return filepath.Join(dist, "NightlyDebug.app", "Contents", "MacOS", "firefox-bin"), nil
	case Linux:
		return filepath.Join(dist, "bin", "firefox"), nil
	case Windows:
		return filepath.Join(dist, "bin", "firefox.exe"), nil
	}
	return "", &UnsupportedPlatformError{Platform: p}
}
