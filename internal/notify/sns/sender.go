package sns

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"idverify/internal/platform/config"
)

// Sender delivers one-time codes as SMS messages via AWS SNS.
type Sender struct {
	client *sns.Client
}

func NewSender(ctx context.Context, cfg config.Config) (*Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Sender{client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *Sender) Deliver(ctx context.Context, channel, code string) error {
	message := fmt.Sprintf("%s is your verification code.", code)
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &channel,
		Message:     &message,
	})
	return err
}
