package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recomail/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (l nopLogger) With(...any) types.Logger { return l }

type mockCW struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCW) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func sampleSummary() types.RunSummary {
	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	return types.RunSummary{
		RunID:            "run-1",
		Considered:       10,
		Generated:        7,
		FailedGeneration: 2,
		Skipped:          1,
		Sent:             6,
		FailedDelivery:   1,
		StartedAt:        start,
		FinishedAt:       start.Add(90 * time.Second),
	}
}

func TestPublishRunSummary(t *testing.T) {
	client := &mockCW{}
	pub := NewPublisherWithAPI(client, "Recomail/Pipeline", nopLogger{})

	require.NoError(t, pub.PublishRunSummary(context.Background(), sampleSummary()))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "Recomail/Pipeline", *input.Namespace)
	require.Len(t, input.MetricData, 7)

	byName := make(map[string]float64, len(input.MetricData))
	for _, d := range input.MetricData {
		byName[*d.MetricName] = *d.Value
		require.Len(t, d.Dimensions, 1)
		assert.Equal(t, "RunID", *d.Dimensions[0].Name)
		assert.Equal(t, "run-1", *d.Dimensions[0].Value)
	}

	assert.Equal(t, float64(10), byName["CustomersConsidered"])
	assert.Equal(t, float64(7), byName["RecommendationsGenerated"])
	assert.Equal(t, float64(2), byName["GenerationFailures"])
	assert.Equal(t, float64(1), byName["CustomersSkipped"])
	assert.Equal(t, float64(6), byName["EmailsSent"])
	assert.Equal(t, float64(1), byName["DeliveryFailures"])
	assert.Equal(t, float64(90), byName["RunDuration"])
}

func TestPublishRunSummaryError(t *testing.T) {
	client := &mockCW{err: errors.New("throttled")}
	pub := NewPublisherWithAPI(client, "Recomail/Pipeline", nopLogger{})

	err := pub.PublishRunSummary(context.Background(), sampleSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put metric data")
}
