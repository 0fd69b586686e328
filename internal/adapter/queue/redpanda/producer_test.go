package redpanda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These construct real kgo clients without a live Redpanda cluster, matching
// the teacher's own unit-test style (NewProducer_Unit). NewProducer still
// attempts its topic-creation request against the seed broker; when nothing
// answers, it logs a warning after a 5s timeout and returns the producer.

func TestNewProducer_EmptyBrokers(t *testing.T) {
	_, err := NewProducer(nil, "grading-jobs", "gradeengine-producer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seed brokers")
}

func TestNewProducer_ValidBrokersConstructsClient(t *testing.T) {
	p, err := NewProducer([]string{"localhost:9092"}, "grading-jobs", "gradeengine-producer-test")
	require.NoError(t, err)
	require.NotNil(t, p)
	defer func() { _ = p.Close() }()

	assert.Equal(t, "grading-jobs", p.topic)
}
