package outreach

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/llm"
)

type stubCompleter struct {
	answer string
	err    error
}

func (s stubCompleter) Complete(context.Context, llm.Request) (string, error) {
	return s.answer, s.err
}

var (
	testProfile = domain.Profile{ID: "p1", Name: "Ada Lovelace", Bio: "Ada builds analytical engines. She also writes.", Tagline: "first programmer"}
	testPodcast = domain.Podcast{ExternalID: "pod-1", Name: "Engine Room", Categories: []string{"Technology", "History"}}
)

func TestGenerate_UsesModelJSON(t *testing.T) {
	g, err := NewPitchGenerator(stubCompleter{answer: "```json\n{\"subject\":\"Hello\",\"body\":\"Pitch body\"}\n```"}, "", "")
	require.NoError(t, err)

	p, err := g.Generate(context.Background(), testProfile, testPodcast)
	require.NoError(t, err)
	assert.Equal(t, PitchFromLLM, p.Source)
	assert.Equal(t, "Hello", p.Subject)
	assert.Equal(t, "Pitch body", p.Body)
	assert.Equal(t, "pod-1", p.PodcastID)
}

func TestGenerate_FallsBackToTemplate(t *testing.T) {
	tests := []struct {
		name string
		c    llm.Completer
	}{
		{"no model", nil},
		{"model error", stubCompleter{err: errors.New("boom")}},
		{"not json", stubCompleter{answer: "Sure! Here's a pitch."}},
		{"missing body", stubCompleter{answer: `{"subject":"x"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewPitchGenerator(tt.c, "", "")
			require.NoError(t, err)

			p, err := g.Generate(context.Background(), testProfile, testPodcast)
			require.NoError(t, err)
			assert.Equal(t, PitchFromTemplate, p.Source)
			assert.Equal(t, "Guest idea for Engine Room: Ada Lovelace", p.Subject)
			assert.Contains(t, p.Body, "Ada Lovelace, first programmer")
			assert.Contains(t, p.Body, "Ada builds analytical engines.")
			assert.NotContains(t, p.Body, "She also writes")
			assert.Contains(t, p.Body, "Technology, History")
		})
	}
}

func TestNewPitchGenerator_RejectsBadTemplate(t *testing.T) {
	_, err := NewPitchGenerator(nil, "{% if %}", "")
	assert.Error(t, err)
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-123")}, nil
}

func TestMailer_Send(t *testing.T) {
	ses := &fakeSES{}
	m := NewMailerWithClient(ses, "bookings@example.com", "Bookings")

	id, err := m.Send(context.Background(), &Pitch{Subject: "Hi", Body: "Body", PodcastID: "pod 1", ProfileID: "p1"}, "host@example.com")
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	require.NotNil(t, ses.in)
	assert.Equal(t, "Bookings <bookings@example.com>", aws.ToString(ses.in.FromEmailAddress))
	assert.Equal(t, []string{"host@example.com"}, ses.in.Destination.ToAddresses)
	assert.Equal(t, "Hi", aws.ToString(ses.in.Content.Simple.Subject.Data))
	assert.Equal(t, "pod_1", aws.ToString(ses.in.EmailTags[0].Value))
}

func TestMailer_Disabled(t *testing.T) {
	m := NewMailerWithClient(nil, "", "")
	_, err := m.Send(context.Background(), &Pitch{}, "host@example.com")
	assert.ErrorIs(t, err, ErrMailerDisabled)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"type":"opened","message_id":"m1"}`)
	v := NewWebhookVerifier("s3cret")
	sig := v.Sign(body)

	assert.NoError(t, v.Verify(body, sig))
	assert.NoError(t, v.Verify(body, "sha256="+sig))
	assert.ErrorIs(t, v.Verify(body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(body, "deadbeef"), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify([]byte(`{"type":"replied"}`), sig), ErrInvalidSignature)

	open := NewWebhookVerifier("")
	assert.NoError(t, open.Verify(body, ""))
}

type memEvents struct{ got []*domain.OutreachEvent }

func (m *memEvents) Record(_ context.Context, ev *domain.OutreachEvent) error {
	m.got = append(m.got, ev)
	return nil
}

func TestIngest(t *testing.T) {
	store := &memEvents{}
	in := NewEventIngester(NewWebhookVerifier(""), store)

	ev, err := in.Ingest(context.Background(), []byte(`{"type":"Replied","message_id":"m1","recipient":"host@example.com","timestamp":"2026-03-01T10:00:00Z"}`), "")
	require.NoError(t, err)
	assert.Equal(t, "replied", ev.Type)
	assert.Equal(t, 2026, ev.OccurredAt.Year())
	require.Len(t, store.got, 1)

	_, err = in.Ingest(context.Background(), []byte(`{"type":"clicked","message_id":"m1"}`), "")
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = in.Ingest(context.Background(), []byte(`{"type":"opened"}`), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, store.got, 1)
}
