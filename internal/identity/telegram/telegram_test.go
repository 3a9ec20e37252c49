package telegram

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cityrater/pkg/domain-errors"
)

const botToken = "123456:test-token"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signed(t *testing.T, token string, authDate time.Time, user string) string {
	t.Helper()
	v := url.Values{}
	v.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	if user != "" {
		v.Set("user", user)
	}
	v.Set("hash", hex.EncodeToString(Sign(token, DataCheckString(v))))
	return v.Encode()
}

func TestVerify(t *testing.T) {
	verifier := NewVerifier(botToken, WithClock(func() time.Time { return now }))
	user := `{"id":279058397,"first_name":"Vlad","username":"vlad","language_code":"en"}`

	t.Run("valid init data", func(t *testing.T) {
		id, err := verifier.Verify(signed(t, botToken, now.Add(-time.Hour), user))
		require.NoError(t, err)
		assert.Equal(t, "279058397", id.ExternalID())
		assert.Equal(t, "vlad", id.User.UserName)
		assert.Equal(t, now.Add(-time.Hour).Unix(), id.AuthDate.Unix())
	})

	t.Run("missing init data", func(t *testing.T) {
		_, err := verifier.Verify("  ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unsigned init data", func(t *testing.T) {
		_, err := verifier.Verify("query_id=123")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("signed with another token", func(t *testing.T) {
		_, err := verifier.Verify(signed(t, "999:other", now, user))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("tampered user", func(t *testing.T) {
		v, err := url.ParseQuery(signed(t, botToken, now, user))
		require.NoError(t, err)
		v.Set("user", `{"id":1,"first_name":"Mallory"}`)
		_, err = verifier.Verify(v.Encode())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("expired", func(t *testing.T) {
		_, err := verifier.Verify(signed(t, botToken, now.Add(-25*time.Hour), user))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("no user", func(t *testing.T) {
		_, err := verifier.Verify(signed(t, botToken, now, ""))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("missing bot token is a server error", func(t *testing.T) {
		_, err := NewVerifier("").Verify(signed(t, botToken, now, user))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestVerifyWithoutMaxAge(t *testing.T) {
	verifier := NewVerifier(botToken, WithMaxAge(0), WithClock(func() time.Time { return now }))
	_, err := verifier.Verify(signed(t, botToken, now.AddDate(-1, 0, 0), `{"id":42,"first_name":"Old"}`))
	assert.NoError(t, err)
}
