package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"

	"carrental/internal/app/dto"
	"carrental/internal/app/policies"
)

type captureSender struct {
	sent []*gomail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func sampleNotice() dto.BookingNotice {
	return dto.BookingNotice{
		RecipientName: "Sana",
		BookingID:     "b-1",
		VehicleID:     "car-1",
		LocalStart:    "2025-03-01 15:00",
		LocalEnd:      "2025-03-01 18:00",
		Timezone:      "Asia/Karachi",
		Total:         "30.00 USD",
		Detail:        "Payment not completed in time",
	}
}

func TestRenderEveryTemplate(t *testing.T) {
	n, err := NewNotifierWithSender("bookings@carrental.local", &captureSender{}, nil)
	require.NoError(t, err)

	for name := range subjects {
		subject, body, err := n.Render(name, sampleNotice())
		require.NoError(t, err, name)
		assert.NotEmpty(t, subject)
		assert.Contains(t, body, "Hi Sana,")
		assert.Contains(t, body, "b-1")
		assert.Contains(t, body, "2025-03-01 15:00")
	}

	_, body, err := n.Render(policies.TemplateBookingCancelled, sampleNotice())
	require.NoError(t, err)
	assert.Contains(t, body, "has been cancelled")
	assert.Contains(t, body, "Payment not completed in time")
	assert.NotContains(t, body, "Drive safely")
}

func TestRenderEscapesData(t *testing.T) {
	n, err := NewNotifierWithSender("bookings@carrental.local", &captureSender{}, nil)
	require.NoError(t, err)
	notice := sampleNotice()
	notice.RecipientName = "<script>x</script>"

	_, body, err := n.Render(policies.TemplateBookingConfirmed, notice)
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestSend(t *testing.T) {
	sender := &captureSender{}
	n, err := NewNotifierWithSender("bookings@carrental.local", sender, nil)
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "sana@example.com", policies.TemplatePaymentFailed, sampleNotice()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"sana@example.com"}, sender.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Payment failed"}, sender.sent[0].GetHeader("Subject"))

	assert.Error(t, n.Send(context.Background(), "sana@example.com", "unknown", sampleNotice()))

	sender.err = errors.New("smtp: 421 service not available")
	err = n.Send(context.Background(), "sana@example.com", policies.TemplateReminderEnd, sampleNotice())
	assert.ErrorContains(t, err, "421")
}
