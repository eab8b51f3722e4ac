// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSClient struct {
	client   *sns.Client
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// LaunchFailureAlert carries everything an operator needs to remediate a
// clinic left live in the store without a running agent.
type LaunchFailureAlert struct {
	ClinicID     string `json:"clinicId"`
	RequestID    string `json:"requestId"`
	MachineName  string `json:"machineName"`
	LauncherErr  string `json:"launcherError"`
	Compensated  bool   `json:"compensated"`
	StoreStatus  string `json:"storeStatus"`
	OccurredAtMS int64  `json:"occurredAtMs"`
}

// PublishLaunchFailure publishes a remediation alert to the configured topic.
func (s *SNSClient) PublishLaunchFailure(ctx context.Context, alert LaunchFailureAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	subject := fmt.Sprintf("Agent launch failed for clinic %s", alert.ClinicID)
	message := string(body)

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &s.topicARN,
		Subject:  &subject,
		Message:  &message,
	})
	if err != nil {
		return fmt.Errorf("publish launch failure alert: %w", err)
	}
	return nil
}
