package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsoleMailer_Send(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewConsoleMailer(zap.New(core))

	err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Body: "Hello"})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].ContextMap()["to"])
	assert.Equal(t, "Hi", entries[0].ContextMap()["subject"])
}

func TestConsoleMailer_NoRecipient(t *testing.T) {
	m := NewConsoleMailer(zap.NewNop())
	require.ErrorIs(t, m.Send(context.Background(), Message{Subject: "Hi"}), ErrNoRecipient)
}

func TestConsoleMailer_CanceledContext(t *testing.T) {
	m := NewConsoleMailer(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Send(ctx, Message{To: "a@example.com"}), context.Canceled)
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "shop@example.com"})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "localhost"})
	require.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "shop@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
	assert.Positive(t, m.cfg.Timeout)
}

func TestSMTPMailer_NoRecipient(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "shop@example.com"})
	require.NoError(t, err)
	require.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipient)
}
