package bundle

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := *params.Key
	if f.failOn != "" && key == f.failOn {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "package p")

	s3c := newFakeS3()
	pub := NewPublisher(NewExporter(e, nil), s3c, "policy-bundles", "exports")

	key, err := pub.Publish(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "exports/acme-bundle.tar.gz", key)

	data, ok := s3c.objects["policy-bundles/"+key]
	require.True(t, ok)
	entries := unpack(t, data)
	assert.Contains(t, entries, "p.rego")
}

func TestPublisher_PublishAll(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "A")
	createPolicy(t, e, "globex", "q", "rego", "B")
	createPolicy(t, e, "initech", "r", "rego", "C")

	s3c := newFakeS3()
	pub := NewPublisher(NewExporter(e, nil), s3c, "policy-bundles", "")

	require.NoError(t, pub.PublishAll(ctx, []string{"acme", "globex", "initech"}))
	assert.Len(t, s3c.objects, 3)
}

func TestPublisher_PublishAllSurfacesFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "A")
	createPolicy(t, e, "globex", "q", "rego", "B")

	s3c := newFakeS3()
	s3c.failOn = Filename("globex")
	pub := NewPublisher(NewExporter(e, nil), s3c, "policy-bundles", "")

	err := pub.PublishAll(ctx, []string{"acme", "globex"})
	assert.Error(t, err)
}

func TestPublisher_BuildFailureDoesNotUpload(t *testing.T) {
	ctx := context.Background()
	s3c := newFakeS3()
	pub := NewPublisher(NewExporter(failingSource{}, nil), s3c, "policy-bundles", "")

	_, err := pub.Publish(ctx, "acme")
	require.Error(t, err)
	var exportErr *ExportError
	assert.True(t, errors.As(err, &exportErr))
	assert.Empty(t, s3c.objects)
}
