// Package metrics counts session outcomes and optionally publishes them
// to CloudWatch.
package metrics

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"optionflow/config"
	"optionflow/logger"
)

// Session outcome names, used as metric names and log fields.
const (
	OutcomeCompleted = "session_completed"
	OutcomeTimedOut  = "session_timed_out"
	OutcomeFailed    = "session_failed"
)

// Recorder accumulates session outcome counters. A nil Recorder is
// valid and records nothing. When CloudWatch is enabled each outcome is
// also published as a count metric with the asset as a dimension.
type Recorder struct {
	log       *logger.Log
	client    *cloudwatch.Client
	namespace string

	completed atomic.Int64
	timedOut  atomic.Int64
	failed    atomic.Int64
}

// NewRecorder builds a Recorder. When CloudWatch publication is enabled
// but the AWS configuration cannot be loaded, publication is disabled
// and counting continues locally.
func NewRecorder(ctx context.Context, cfg config.MetricsConfig) *Recorder {
	r := &Recorder{log: logger.GetLogger()}
	if !cfg.CloudWatch {
		return r
	}

	log := r.log.WithComponent("metrics")
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return r
	}
	r.client = cloudwatch.NewFromConfig(awsCfg)
	r.namespace = cfg.Namespace
	log.WithFields(logger.Fields{"namespace": cfg.Namespace}).Info("CloudWatch metrics enabled")
	return r
}

// RecordSession counts one session outcome for an asset.
func (r *Recorder) RecordSession(ctx context.Context, asset, outcome string) {
	if r == nil {
		return
	}
	switch outcome {
	case OutcomeCompleted:
		r.completed.Add(1)
	case OutcomeTimedOut:
		r.timedOut.Add(1)
	case OutcomeFailed:
		r.failed.Add(1)
	}
	r.publish(ctx, asset, outcome)
}

// Counts returns the accumulated outcome counters.
func (r *Recorder) Counts() (completed, timedOut, failed int64) {
	if r == nil {
		return 0, 0, 0
	}
	return r.completed.Load(), r.timedOut.Load(), r.failed.Load()
}

func (r *Recorder) publish(ctx context.Context, asset, outcome string) {
	if r.client == nil {
		return
	}
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(outcome),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(1),
			Dimensions: []cwtypes.Dimension{{
				Name:  aws.String("asset"),
				Value: aws.String(asset),
			}},
		}},
	})
	if err != nil {
		r.log.WithComponent("metrics").WithError(err).Warn("failed to publish metric")
	}
}
