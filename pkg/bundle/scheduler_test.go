package bundle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/observability"
)

func schedulerLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	e := newEngine(t)
	pub := NewPublisher(NewExporter(e, nil), newFakeS3(), "policy-bundles", "")

	s := NewScheduler(pub, []string{"acme"}, schedulerLogger())
	err := s.Start("not a cron spec")
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "allow")
	pub := NewPublisher(NewExporter(e, nil), newFakeS3(), "policy-bundles", "")

	s := NewScheduler(pub, []string{"acme"}, schedulerLogger())
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}

func TestScheduler_RunPublishesAllTenants(t *testing.T) {
	e := newEngine(t)
	createPolicy(t, e, "acme", "p", "rego", "A")
	createPolicy(t, e, "globex", "q", "rego", "B")

	s3c := newFakeS3()
	pub := NewPublisher(NewExporter(e, nil), s3c, "policy-bundles", "")

	s := NewScheduler(pub, []string{"acme", "globex"}, schedulerLogger())
	s.run()

	assert.Len(t, s3c.objects, 2)
}
