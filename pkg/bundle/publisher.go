package bundle

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// objectPutter is the slice of the S3 API the publisher needs.
// *s3.Client satisfies it.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads built bundles to the S3 location the
// policy-enforcement engine polls.
type Publisher struct {
	exporter *Exporter
	client   objectPutter
	bucket   string
	prefix   string
}

// NewPublisher creates a bundle publisher.
func NewPublisher(exporter *Exporter, client objectPutter, bucket, prefix string) *Publisher {
	return &Publisher{
		exporter: exporter,
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Publish builds the tenant's bundle and uploads it, returning the object
// key written.
func (p *Publisher) Publish(ctx context.Context, tenant string) (string, error) {
	data, err := p.exporter.Build(ctx, tenant)
	if err != nil {
		return "", err
	}

	key := path.Join(p.prefix, Filename(tenant))
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload bundle for tenant %q: %w", tenant, err)
	}
	return key, nil
}

// PublishAll publishes every tenant's bundle concurrently, bounded to four
// uploads in flight. The first failure cancels the rest.
func (p *Publisher) PublishAll(ctx context.Context, tenants []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tenant := range tenants {
		g.Go(func() error {
			_, err := p.Publish(ctx, tenant)
			return err
		})
	}
	return g.Wait()
}
