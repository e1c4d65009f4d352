package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderBuildsMessage(t *testing.T) {
	api := &fakeSES{}
	sender := newSESSender(api, SESConfig{FromEmail: "booking@spa.example"}, logging.Discard())

	err := sender.Send(context.Background(), EmailMessage{
		To:      "admin@spa.example",
		Subject: "New appointment",
		Body:    "New booking on 01/04/2025 at 10:00.",
	})
	require.NoError(t, err)
	require.Len(t, api.inputs, 1)

	in := api.inputs[0]
	assert.Equal(t, "Spa Booking <booking@spa.example>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"admin@spa.example"}, in.Destination.ToAddresses)
	simple := in.Content.Simple
	assert.Equal(t, "New appointment", aws.ToString(simple.Subject.Data))
	require.NotNil(t, simple.Body.Text)
	assert.Equal(t, "UTF-8", aws.ToString(simple.Body.Text.Charset))
	assert.Nil(t, simple.Body.Html)
}

func TestSESSenderErrors(t *testing.T) {
	api := &fakeSES{err: errors.New("throttled")}
	sender := newSESSender(api, SESConfig{FromEmail: "booking@spa.example", FromName: "Lotus Spa"}, logging.Discard())

	assert.Error(t, sender.Send(context.Background(), EmailMessage{}))
	assert.Empty(t, api.inputs, "no call without a recipient")

	err := sender.Send(context.Background(), EmailMessage{To: "admin@spa.example", Subject: "x", HTML: "<p>x</p>"})
	assert.ErrorContains(t, err, "throttled")
	require.Len(t, api.inputs, 1)
	assert.Equal(t, "Lotus Spa <booking@spa.example>", aws.ToString(api.inputs[0].FromEmailAddress))
	assert.NotNil(t, api.inputs[0].Content.Simple.Body.Html)
}

func TestNewSESSenderNilWithoutClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "booking@spa.example"}, nil))
}
