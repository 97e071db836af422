package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

type SQSConfig struct {
	QueueURL          string
	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

type sqsQueue struct {
	client *sqs.Client
	cfg    SQSConfig
	logger *zap.Logger
}

// NewSQSQueue wraps an SQS client constructed once at startup.
func NewSQSQueue(client *sqs.Client, cfg SQSConfig, logger *zap.Logger) Queue {
	return &sqsQueue{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (q *sqsQueue) Send(ctx context.Context, body []byte, attributes map[string]string) error {
	messageAttributes := make(map[string]types.MessageAttributeValue, len(attributes))
	for name, value := range attributes {
		messageAttributes[name] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}

	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.cfg.QueueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: messageAttributes,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to queue: %w", err)
	}
	return nil
}

func (q *sqsQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.cfg.QueueURL),
		MaxNumberOfMessages:   int32(q.cfg.MaxMessages),
		WaitTimeSeconds:       int32(q.cfg.WaitTime / time.Second),
		VisibilityTimeout:     int32(q.cfg.VisibilityTimeout / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages from queue: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attributes := make(map[string]string, len(m.MessageAttributes))
		for name, attr := range m.MessageAttributes {
			attributes[name] = aws.ToString(attr.StringValue)
		}
		messages = append(messages, Message{
			Body:       []byte(aws.ToString(m.Body)),
			Attributes: attributes,
			Receipt:    aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

func (q *sqsQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from queue: %w", err)
	}
	return nil
}
