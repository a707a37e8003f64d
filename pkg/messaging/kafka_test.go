package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/models"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func testTopology() models.AppDataSource {
	return models.AppDataSource{
		Filestore: map[string][]models.FileSource{
			"s3": {{URL: "s3://bucket/data.csv"}},
		},
	}
}

func TestPublishTopologyChangeFirstOnboarding(t *testing.T) {
	writer := &stubWriter{}
	p := &kafkaPublisher{writer: writer, trailingMessage: "refresh", logger: zap.NewNop()}

	err := p.PublishTopologyChange(context.Background(), "sales", "TSK-12345-sales-Onboarding-20260831120000", testTopology(), nil)

	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	assert.Equal(t, []byte("sales"), writer.messages[0].Key)

	var payload []json.RawMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &payload))
	require.Len(t, payload, 4)

	var taskID string
	require.NoError(t, json.Unmarshal(payload[0], &taskID))
	assert.Equal(t, "TSK-12345-sales-Onboarding-20260831120000", taskID)
	assert.Equal(t, "null", string(payload[2]), "previous topology is null on first onboarding")

	var trailing string
	require.NoError(t, json.Unmarshal(payload[3], &trailing))
	assert.Equal(t, "refresh", trailing)
}

func TestPublishTopologyChangeUpdateCarriesPrevious(t *testing.T) {
	writer := &stubWriter{}
	p := &kafkaPublisher{writer: writer, logger: zap.NewNop()}
	previous := testTopology()
	next := testTopology()
	next.Filestore["s3"] = append(next.Filestore["s3"], models.FileSource{URL: "s3://bucket/extra.csv"})

	err := p.PublishTopologyChange(context.Background(), "sales", "TSK-00001-sales-Onboarding-x", next, &previous)

	require.NoError(t, err)
	var payload []json.RawMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &payload))
	var prev models.AppDataSource
	require.NoError(t, json.Unmarshal(payload[2], &prev))
	assert.True(t, prev.Equal(previous))
}

func TestPublishTopologyChangeWriteFailure(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker unavailable")}
	p := &kafkaPublisher{writer: writer, logger: zap.NewNop()}

	err := p.PublishTopologyChange(context.Background(), "sales", "TSK-1", testTopology(), nil)

	assert.ErrorContains(t, err, "broker unavailable")
}

func TestCloseClosesWriter(t *testing.T) {
	writer := &stubWriter{}
	p := &kafkaPublisher{writer: writer, logger: zap.NewNop()}

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
