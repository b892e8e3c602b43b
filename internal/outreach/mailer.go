package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/pkg/logger"
)

// ErrMailerDisabled is returned by Send when email is not configured.
var ErrMailerDisabled = errors.New("email sending is not configured")

// SESAPI is the part of the SES v2 client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Mailer sends pitches through AWS SES.
type Mailer struct {
	client   SESAPI
	from     string
	fromName string
}

// NewMailer builds an SES mailer from cfg. When email is disabled or no
// credentials are set the returned mailer refuses to send.
func NewMailer(ctx context.Context, cfg config.EmailConfig) (*Mailer, error) {
	m := &Mailer{from: cfg.FromAddress, fromName: cfg.FromName}
	if !cfg.Enabled || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return m, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SES: %w", err)
	}
	m.client = sesv2.NewFromConfig(awsCfg)
	return m, nil
}

// NewMailerWithClient is used by tests.
func NewMailerWithClient(client SESAPI, from, fromName string) *Mailer {
	return &Mailer{client: client, from: from, fromName: fromName}
}

// Enabled reports whether Send can deliver.
func (m *Mailer) Enabled() bool { return m != nil && m.client != nil && m.from != "" }

// Send delivers p to the given address and returns the SES message id.
// The podcast and profile ids travel as message tags so webhook events can
// be tied back to the pitch.
func (m *Mailer) Send(ctx context.Context, p *Pitch, to string) (string, error) {
	if !m.Enabled() {
		return "", ErrMailerDisabled
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.New("recipient address is required")
	}

	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.from)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(p.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(p.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("podcast_id"), Value: aws.String(tagValue(p.PodcastID))},
			{Name: aws.String("profile_id"), Value: aws.String(tagValue(p.ProfileID))},
		},
	}

	out, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	id := aws.ToString(out.MessageId)
	logger.Info("pitch sent", "recipient", to, "podcast_id", p.PodcastID, "message_id", id)
	return id, nil
}

// tagValue keeps SES tag values inside the allowed character set.
func tagValue(s string) string {
	if s == "" {
		return "none"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
