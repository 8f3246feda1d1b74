package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/security"
)

func TestBuildEvent(t *testing.T) {
	ev, err := buildEvent(chat.ChannelNewMessage, "u1", "c1", `{"text":"hi"}`)
	require.NoError(t, err)
	m := ev.(chat.NewMessage)
	assert.Equal(t, "u1", m.RecipientID)
	assert.Equal(t, "c1", m.ConversationID)

	ev, err = buildEvent(chat.ChannelNewPost, "a1", "", `{"id":1}`)
	require.NoError(t, err)
	assert.Equal(t, "a1", ev.(chat.NewPost).AuthorID)

	_, err = buildEvent("newComment", "u1", "", `{}`)
	assert.Error(t, err)

	_, err = buildEvent(chat.ChannelNewNotification, "u1", "", `not json`)
	assert.Error(t, err)

	_, err = buildEvent(chat.ChannelNewNotification, "", "", `{}`)
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestTokenCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"token", "u42", "--secret", "s3cret"})
	require.NoError(t, rootCmd.Execute())

	v, err := security.NewVerifier(security.Options{Secret: []byte("s3cret")})
	require.NoError(t, err)
	user, err := v.VerifyToken(string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, "u42", user)
}

func TestPublishCommandMemoryBroker(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"publish", "newNotification", "u1", "--broker", "memory://", "--count", "3"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "published 3 newNotification event(s) via memory")
}
