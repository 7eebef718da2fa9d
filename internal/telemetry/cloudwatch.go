// Package telemetry publishes run outcome metrics to AWS CloudWatch.
// Publishing is best effort: a metric failure is logged and never affects
// the run result.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"recomail/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher emits one datum per run summary counter, all tagged with the
// run ID, plus a RunDuration datum in seconds.
type Publisher struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewPublisher builds a publisher backed by a real CloudWatch client for
// the given region.
func NewPublisher(ctx context.Context, namespace, region string, logger types.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewPublisherWithAPI(cloudwatch.NewFromConfig(awsCfg), namespace, logger), nil
}

// NewPublisherWithAPI creates a publisher with an injected client.
func NewPublisherWithAPI(client CloudWatchClient, namespace string, logger types.Logger) *Publisher {
	return &Publisher{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// PublishRunSummary sends the summary counters as CloudWatch metric data.
func (p *Publisher) PublishRunSummary(ctx context.Context, summary types.RunSummary) error {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String("RunID"),
			Value: aws.String(summary.RunID),
		},
	}

	counters := []struct {
		name  string
		value int
	}{
		{"CustomersConsidered", summary.Considered},
		{"RecommendationsGenerated", summary.Generated},
		{"GenerationFailures", summary.FailedGeneration},
		{"CustomersSkipped", summary.Skipped},
		{"EmailsSent", summary.Sent},
		{"DeliveryFailures", summary.FailedDelivery},
	}

	data := make([]cwtypes.MetricDatum, 0, len(counters)+1)
	for _, c := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Value:      aws.Float64(float64(c.value)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		})
	}
	data = append(data, cwtypes.MetricDatum{
		MetricName: aws.String("RunDuration"),
		Value:      aws.Float64(summary.FinishedAt.Sub(summary.StartedAt).Seconds()),
		Unit:       cwtypes.StandardUnitSeconds,
		Dimensions: dims,
	})

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.Error("failed to publish run metrics",
			"error", err.Error(),
			"run_id", summary.RunID,
		)
		return fmt.Errorf("put metric data: %w", err)
	}

	p.logger.Info("run metrics published", "run_id", summary.RunID, "namespace", p.namespace)
	return nil
}
