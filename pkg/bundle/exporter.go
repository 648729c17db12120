package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/policy"
)

// ManifestName is the archive entry carrying the bundle manifest.
const ManifestName = ".manifest.json"

// ContentType is the media type bundles are served with.
const ContentType = "application/gzip"

// ExportError reports a failed bundle build. No partial archive ever
// accompanies it.
type ExportError struct {
	Tenant string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("bundle export for tenant %q failed: %v", e.Tenant, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Manifest is the integrity record written into every bundle.
type Manifest struct {
	Tenant   string            `json:"tenant"`
	Revision string            `json:"revision"`
	BuiltAt  time.Time         `json:"built_at"`
	// Files maps archive entry names to the sha256 hex digest of their
	// content.
	Files map[string]string `json:"files"`
}

// ActiveSource yields the active policy set for a tenant. *policy.Engine
// satisfies it.
type ActiveSource interface {
	AllActive(ctx context.Context, tenant string) ([]policy.Version, error)
}

// Exporter builds policy bundles.
type Exporter struct {
	source ActiveSource
	cache  *Cache // optional
	now    func() time.Time
}

// NewExporter creates a bundle exporter. cache may be nil.
func NewExporter(source ActiveSource, cache *Cache) *Exporter {
	return &Exporter{
		source: source,
		cache:  cache,
		now:    time.Now,
	}
}

// Filename returns the download filename for a tenant's bundle.
func Filename(tenant string) string {
	return tenant + "-bundle.tar.gz"
}

// Build assembles the bundle for a tenant and returns its full byte
// content. A tenant with no active policies yields a valid archive holding
// only the manifest.
func (e *Exporter) Build(ctx context.Context, tenant string) ([]byte, error) {
	if e.cache != nil {
		if data, ok := e.cache.Get(ctx, tenant); ok {
			return data, nil
		}
	}

	active, err := e.source.AllActive(ctx, tenant)
	if err != nil {
		return nil, &ExportError{Tenant: tenant, Err: err}
	}

	data, err := assemble(tenant, active, e.now().UTC())
	if err != nil {
		return nil, &ExportError{Tenant: tenant, Err: err}
	}

	if e.cache != nil {
		e.cache.Set(ctx, tenant, data)
	}
	return data, nil
}

// assemble writes the archive into a buffer and finalizes both writer
// layers before returning any bytes, so a failure can never leak a
// truncated archive to the caller.
func assemble(tenant string, active []policy.Version, builtAt time.Time) ([]byte, error) {
	manifest := Manifest{
		Tenant:  tenant,
		BuiltAt: builtAt,
		Files:   make(map[string]string, len(active)),
	}
	revision := sha256.New()
	for _, v := range active {
		name := v.ID + "." + extensionFor(v.Language)
		sum := sha256.Sum256([]byte(v.Definition))
		manifest.Files[name] = hex.EncodeToString(sum[:])
		fmt.Fprintf(revision, "%s@%d:%x\n", v.ID, v.Version, sum)
	}
	manifest.Revision = hex.EncodeToString(revision.Sum(nil))

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := writeEntry(tw, ManifestName, manifestJSON, builtAt); err != nil {
		return nil, err
	}
	for _, v := range active {
		name := v.ID + "." + extensionFor(v.Language)
		if err := writeEntry(tw, name, []byte(v.Definition), builtAt); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(tw *tar.Writer, name string, content []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(content)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %q: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write entry %q: %w", name, err)
	}
	return nil
}

func extensionFor(language string) string {
	switch language {
	case "rego", "opa":
		return "rego"
	case "cedar":
		return "cedar"
	case "json":
		return "json"
	default:
		return "txt"
	}
}
