package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics writes count metrics to a CloudWatch namespace.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics bound to namespace.
func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CloudWatch: cw, Namespace: namespace, nowFunc: time.Now}
}

// PutCounts sends one Count datum per entry of counts, all sharing dims.
func (m *Metrics) PutCounts(ctx context.Context, dims map[string]string, counts map[string]float64) error {
	if len(counts) == 0 {
		return nil
	}
	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{Name: awsString(k), Value: awsString(v)})
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	ts := m.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(counts))
	for _, name := range names {
		v := counts[name]
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(name),
			Dimensions: dimensions,
			Timestamp:  &ts,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &v,
		})
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.Namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
