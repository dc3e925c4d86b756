package build

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBuildContext_SkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"Dockerfile", "src/main.c", ".hg/store/data", ".git/HEAD", "obj-ff-dbg/dist/bin/firefox", ".github/workflow.yml"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0644))
	}

	reader, err := createBuildContext(dir, []string{".git", ".hg", "obj-ff-dbg"})
	require.NoError(t, err)

	tr := tar.NewReader(reader)
	var names []string
	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			contents[hdr.Name] = string(data)
		}
	}
	sort.Strings(names)

	assert.Equal(t, []string{".github", ".github/workflow.yml", "Dockerfile", "src", "src/main.c"}, names)
	assert.Equal(t, "src/main.c", contents["src/main.c"])
}

func TestProcessBuildOutput(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 1/2 : FROM alpine\n"}`,
		`{"stream":"Step 2/2 : RUN make\n"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, processBuildOutput(strings.NewReader(stream), &out))
	assert.Equal(t, "Step 1/2 : FROM alpine\nStep 2/2 : RUN make\n", out.String())
}

func TestProcessBuildOutput_Error(t *testing.T) {
	stream := `{"stream":"Step 1/1 : RUN make\n"}
{"errorDetail":{"message":"returned a non-zero code: 2"},"error":"returned a non-zero code: 2"}`

	err := processBuildOutput(strings.NewReader(stream), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-zero code: 2")
}

func TestProcessBuildOutput_Malformed(t *testing.T) {
	assert.Error(t, processBuildOutput(strings.NewReader(`{"stream":`), nil))
}

func TestShortRev(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortRev("0123456789abcdef"))
	assert.Equal(t, "abc", shortRev("abc"))
	assert.Equal(t, "latest", shortRev(""))
}
