package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

func TestNewJobID_CarriesPrefix(t *testing.T) {
	first := NewJobID()
	second := NewJobID()
	assert.True(t, strings.HasPrefix(first, "job-impact-engine-"))
	assert.NotEqual(t, first, second)
}

func TestSplitURL(t *testing.T) {
	cases := []struct {
		url    string
		scheme string
		root   string
	}{
		{"", "fs", "."},
		{"./results", "fs", "./results"},
		{"/var/lib/impact", "fs", "/var/lib/impact"},
		{"file:///tmp/impact", "fs", "/tmp/impact"},
		{"mem://", "mem", "."},
		{"s3://bucket/prefix", "s3", "bucket/prefix"},
	}
	for _, tc := range cases {
		scheme, root := splitURL(tc.url)
		assert.Equal(t, tc.scheme, scheme, tc.url)
		assert.Equal(t, tc.root, root, tc.url)
	}
}

func TestNewManager_UnknownScheme(t *testing.T) {
	_, err := NewManager("s3://bucket", NewJobID())
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownKey)
}

func TestNewManager_RequiresJobID(t *testing.T) {
	_, err := NewManager(t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job id")
}

func TestFS_CreatesJobDirectory(t *testing.T) {
	root := t.TempDir()
	jobID := NewJobID()
	m, err := NewManager(root, jobID)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, jobID))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, jobID, m.JobID())
	assert.Equal(t, filepath.Join(root, jobID, "manifest.json"), m.FullPath("manifest.json"))
}

func TestFS_JSONRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir(), NewJobID())
	require.NoError(t, err)

	require.NoError(t, m.WriteJSON("manifest.json", map[string]any{"schema_version": "2.0"}))
	assert.True(t, m.Exists("manifest.json"))

	var loaded map[string]any
	require.NoError(t, m.ReadJSON("manifest.json", &loaded))
	assert.Equal(t, "2.0", loaded["schema_version"])

	raw, err := m.ReadBytes("manifest.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "  \"schema_version\": \"2.0\"")
}

func TestFS_YAMLRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir(), NewJobID())
	require.NoError(t, err)

	require.NoError(t, m.WriteYAML("config.yaml", map[string]any{"MEASUREMENT": map[string]any{"MODEL": "subclassification"}}))

	var loaded map[string]any
	require.NoError(t, m.ReadYAML("config.yaml", &loaded))
	measurement := loaded["MEASUREMENT"].(map[string]any)
	assert.Equal(t, "subclassification", measurement["MODEL"])
}

func TestFS_ParquetRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir(), NewJobID())
	require.NoError(t, err)

	f, err := frame.FromRecords([]string{"date", "revenue"}, [][]any{
		{"2024-01-01", 12.0},
		{"2024-01-02", 30.5},
	})
	require.NoError(t, err)
	require.NoError(t, m.WriteParquet("business_metrics.parquet", f))

	loaded, err := m.ReadParquet("business_metrics.parquet")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.NumRows())
	revenue, err := loaded.Floats("revenue")
	require.NoError(t, err)
	assert.Equal(t, []float64{12.0, 30.5}, revenue)
}

func TestFS_ReadMissingArtifact(t *testing.T) {
	m, err := NewManager(t.TempDir(), NewJobID())
	require.NoError(t, err)

	_, err = m.ReadBytes("missing.json")
	require.Error(t, err)
	assert.False(t, m.Exists("missing.json"))
}

func TestMem_RoundTripAndIsolation(t *testing.T) {
	m, err := NewManager("mem://", "job-impact-engine-test")
	require.NoError(t, err)

	payload := []byte("panel")
	require.NoError(t, m.WriteBytes("data.bin", payload))
	payload[0] = 'X'

	loaded, err := m.ReadBytes("data.bin")
	require.NoError(t, err)
	assert.Equal(t, "panel", string(loaded))
	assert.Equal(t, "mem://job-impact-engine-test/data.bin", m.FullPath("data.bin"))

	_, err = m.ReadBytes("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact not found")
}
