package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	published []any
	err       error
}

func (p *capturingPublisher) PublishJSON(_ context.Context, v any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, v)
	return nil
}

func TestStreamSend_PublishesEnvelope(t *testing.T) {
	pub := &capturingPublisher{}
	tr := NewStream(pub)

	err := tr.Send(context.Background(), Message{
		Kind:    KindScanCompleted,
		Text:    "done",
		Payload: map[string]int{"checked": 10},
	})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)

	envelope, ok := pub.published[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "scan_completed", envelope["kind"])
	assert.Equal(t, "done", envelope["text"])
	assert.NotEmpty(t, envelope["sent_at"])
}

func TestStreamSend_PropagatesPublishError(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("stream full")}
	tr := NewStream(pub)

	err := tr.Send(context.Background(), Message{Kind: KindWalletFound, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish notification")
}

func TestStreamIdentity(t *testing.T) {
	assert.Equal(t, "stream", NewStream(&capturingPublisher{}).Name())
}

func TestNoopTransport_DropsEverything(t *testing.T) {
	tr := NoopTransport{}
	assert.Equal(t, "noop", tr.Name())
	assert.NoError(t, tr.Send(context.Background(), Message{Kind: KindWalletFound, Text: "x"}))
}
