package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BuildConfigOptions describes the generated build configuration file.
type BuildConfigOptions struct {
	// Path of the file to (re)write.
	Path string
	// External is a user supplied configuration copied in place of the
	// generated defaults.
	External string
	Jobs     int
	Platform Platform
	// ObjDir is the object directory name relative to the source root.
	ObjDir string
}

// WriteBuildConfig writes a fresh build configuration. Any previous file at
// opts.Path is replaced. The object directory is always forced so artifacts
// land where the packager and launcher expect them.
func WriteBuildConfig(opts BuildConfigOptions) error {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return fmt.Errorf("failed to create build config directory: %w", err)
	}
	if err := os.Remove(opts.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old build config: %w", err)
	}

	var b strings.Builder
	if opts.External != "" {
		src, err := os.Open(opts.External)
		if err != nil {
			return fmt.Errorf("failed to open external build config: %w", err)
		}
		defer src.Close()
		if _, err := io.Copy(&b, src); err != nil {
			return fmt.Errorf("failed to read external build config: %w", err)
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString(objDirLine(opts.ObjDir))
		if opts.Platform != Windows {
			b.WriteString(makeFlagsLine(opts.Jobs))
		}
	} else {
		b.WriteString(objDirLine(opts.ObjDir))
		b.WriteString("ac_add_options --disable-optimize\n")
		b.WriteString("ac_add_options --enable-debug\n")
		b.WriteString("ac_add_options --enable-tests\n")
		if opts.Platform == Windows {
			// parallel make is not supported there
			b.WriteString("ac_add_options --with-windows-version=600\n")
			b.WriteString("ac_add_options --enable-application=browser\n")
		} else {
			b.WriteString(makeFlagsLine(opts.Jobs))
		}
	}

	if err := os.WriteFile(opts.Path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write build config: %w", err)
	}
	return nil
}

func objDirLine(objdir string) string {
	return fmt.Sprintf("mk_add_options MOZ_OBJDIR=@TOPSRCDIR@/%s\n", objdir)
}

func makeFlagsLine(jobs int) string {
	if jobs < 1 {
		jobs = 1
	}
	return fmt.Sprintf("mk_add_options MOZ_MAKE_FLAGS=\"-s -j %d\"\n", jobs)
}
