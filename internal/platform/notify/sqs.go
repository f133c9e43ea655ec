package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends one queue message per notification.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// NewSQSClient builds a client from an already loaded AWS config.
func NewSQSClient(cfg aws.Config) *sqs.Client {
	return sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
}

func (p *SQSPublisher) Publish(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		body, err := m.encode()
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"kind": {DataType: aws.String("String"), StringValue: aws.String(string(m.Kind))},
			},
		})
		if err != nil {
			return fmt.Errorf("send sqs notification for event %d: %w", m.EventID, err)
		}
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }
