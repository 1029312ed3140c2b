package mail

import (
	"context"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/pkg/config"
)

func TestMessageValidate(t *testing.T) {
	assert.Error(t, Message{Subject: "s", Text: "t"}.Validate())
	assert.Error(t, Message{To: []mail.Address{{Address: "a@x.com"}}, Text: "t"}.Validate())
	assert.Error(t, Message{To: []mail.Address{{Address: "a@x.com"}}, Subject: "s"}.Validate())
	assert.NoError(t, Message{To: []mail.Address{{Address: "a@x.com"}}, Subject: "s", HTML: "<p>x</p>"}.Validate())
}

func TestNewFallsBackToConsole(t *testing.T) {
	sender := New(config.MailConfig{Provider: config.MailProviderSendGrid}, zap.NewNop())
	_, ok := sender.(*ConsoleSender)
	require.True(t, ok)

	sender = New(config.MailConfig{Provider: config.MailProviderSendGrid, SendGridAPIKey: "key", FromName: "Mag", FromEmail: "no-reply@x.edu"}, nil)
	_, ok = sender.(*SendGridSender)
	require.True(t, ok)
}

func TestSendGridBuild(t *testing.T) {
	s := NewSendGridSender("key", "Mag", "no-reply@x.edu", zap.NewNop())
	m := s.build(Message{To: []mail.Address{{Name: "Ann", Address: "a@x.com"}}, Subject: "Hello", Text: "hi"})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Mag] Hello", m.Personalizations[0].Subject)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}

func TestConsoleSenderSend(t *testing.T) {
	s := NewConsoleSender(nil)
	err := s.Send(context.Background(), Message{To: []mail.Address{{Address: "a@x.com"}}, Subject: "s", Text: "t"})
	assert.NoError(t, err)
}
