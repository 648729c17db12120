package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/policy"
)

func strPtr(s string) *string { return &s }

func newEngine(t *testing.T) *policy.Engine {
	t.Helper()
	return policy.NewEngine(policy.NewMemoryBackend())
}

func createPolicy(t *testing.T, e *policy.Engine, tenant, id, lang, def string) {
	t.Helper()
	_, err := e.Create(context.Background(), tenant, policy.CreateInput{
		ID: id, Definition: def, Language: lang,
	})
	require.NoError(t, err)
}

// unpack reads every entry of a tar.gz archive into a map.
func unpack(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = content
	}
	return entries
}

func TestExporter_Build(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "authz-main", "rego", "package main")
	createPolicy(t, e, "acme", "billing", "json", `{"allow": false}`)
	createPolicy(t, e, "globex", "other", "rego", "package other")

	data, err := NewExporter(e, nil).Build(ctx, "acme")
	require.NoError(t, err)

	entries := unpack(t, data)
	require.Len(t, entries, 3) // two policies + manifest
	assert.Equal(t, "package main", string(entries["authz-main.rego"]))
	assert.Equal(t, `{"allow": false}`, string(entries["billing.json"]))

	var manifest Manifest
	require.NoError(t, json.Unmarshal(entries[ManifestName], &manifest))
	assert.Equal(t, "acme", manifest.Tenant)
	assert.NotEmpty(t, manifest.Revision)
	require.Len(t, manifest.Files, 2)

	sum := sha256.Sum256([]byte("package main"))
	assert.Equal(t, hex.EncodeToString(sum[:]), manifest.Files["authz-main.rego"])
}

func TestExporter_ExcludesInactive(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "keep", "rego", "package keep")
	createPolicy(t, e, "acme", "drop", "rego", "package drop")
	require.NoError(t, e.Delete(ctx, "acme", "drop"))

	_, err := e.Update(ctx, "acme", "keep", policy.UpdateInput{Definition: strPtr("package keep2")})
	require.NoError(t, err)

	entries := mustBuild(t, e, "acme")
	require.Len(t, entries, 2)
	// Only the active version's content appears.
	assert.Equal(t, "package keep2", string(entries["keep.rego"]))
	assert.NotContains(t, entries, "drop.rego")
}

func TestExporter_EmptyTenant(t *testing.T) {
	e := newEngine(t)
	entries := mustBuild(t, e, "nobody")
	require.Len(t, entries, 1)
	assert.Contains(t, entries, ManifestName)
}

func TestExporter_RevisionTracksContent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "A")
	exp := NewExporter(e, nil)

	first, err := exp.Build(ctx, "acme")
	require.NoError(t, err)
	_, err = e.Update(ctx, "acme", "p", policy.UpdateInput{Definition: strPtr("B")})
	require.NoError(t, err)
	second, err := exp.Build(ctx, "acme")
	require.NoError(t, err)

	var m1, m2 Manifest
	require.NoError(t, json.Unmarshal(unpack(t, first)[ManifestName], &m1))
	require.NoError(t, json.Unmarshal(unpack(t, second)[ManifestName], &m2))
	assert.NotEqual(t, m1.Revision, m2.Revision)
}

type failingSource struct{}

func (failingSource) AllActive(ctx context.Context, tenant string) ([]policy.Version, error) {
	return nil, errors.New("backend unavailable")
}

func TestExporter_SourceFailure(t *testing.T) {
	data, err := NewExporter(failingSource{}, nil).Build(context.Background(), "acme")
	require.Error(t, err)
	assert.Nil(t, data) // never a partial archive

	var exportErr *ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, "acme", exportErr.Tenant)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "rego", extensionFor("rego"))
	assert.Equal(t, "rego", extensionFor("opa"))
	assert.Equal(t, "cedar", extensionFor("cedar"))
	assert.Equal(t, "json", extensionFor("json"))
	assert.Equal(t, "txt", extensionFor(""))
	assert.Equal(t, "txt", extensionFor("xacml"))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "acme-bundle.tar.gz", Filename("acme"))
}

func mustBuild(t *testing.T, source ActiveSource, tenant string) map[string][]byte {
	t.Helper()
	data, err := NewExporter(source, nil).Build(context.Background(), tenant)
	require.NoError(t, err)
	return unpack(t, data)
}
