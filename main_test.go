package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEnvelope = "--b1\r\n" +
	"Content-Type: application/json\r\n\r\n" +
	`{"question":"Why Go?","score":"8"}` + "\r\n" +
	"--b1\r\n" +
	"Content-Type: audio/mpeg\r\n\r\n" +
	"ID3abc\r\n" +
	"--b1--\r\n"

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDecodeCommandFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.bin")
	require.NoError(t, os.WriteFile(path, []byte(sampleEnvelope), 0644))

	out, err := runRoot(t, "", "decode", "--boundary", "b1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "part 0: application/json (json")
	assert.Contains(t, out, `"question": "Why Go?"`)
	assert.Contains(t, out, "part 1: audio/mpeg (audio, 6 bytes)")
}

func TestDecodeCommandBoundaryFromContentType(t *testing.T) {
	out, err := runRoot(t, sampleEnvelope, "decode", "--content-type", `multipart/mixed; boundary="b1"`)
	require.NoError(t, err)
	assert.Contains(t, out, "part 1: audio/mpeg")
}

func TestDecodeCommandRequiresBoundary(t *testing.T) {
	_, err := runRoot(t, sampleEnvelope, "decode")
	assert.Error(t, err)
}
