// Package telegram verifies Telegram Mini App init data.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	dErrors "cityrater/pkg/domain-errors"
)

const DefaultMaxAge = 24 * time.Hour

// Identity is a verified Telegram user.
type Identity struct {
	User     tgbotapi.User
	AuthDate time.Time
}

// ExternalID is the decimal Telegram user id.
func (i Identity) ExternalID() string {
	return strconv.FormatInt(i.User.ID, 10)
}

// Verifier checks init data signed with the bot token.
type Verifier struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

type Option func(*Verifier)

// WithMaxAge bounds how old auth_date may be. Zero disables the check.
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) {
		v.maxAge = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(botToken string, opts ...Option) *Verifier {
	v := &Verifier{
		botToken: botToken,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the hash and freshness of initData and decodes its user.
func (v *Verifier) Verify(initData string) (Identity, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return Identity{}, dErrors.New(dErrors.CodeValidation, "initData is required")
	}
	if v.botToken == "" {
		return Identity{}, dErrors.New(dErrors.CodeInternal, "telegram bot token is not configured")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, invalid("malformed init data")
	}
	hash := values.Get("hash")
	if hash == "" {
		return Identity{}, invalid("init data is not signed")
	}
	got, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(got, Sign(v.botToken, DataCheckString(values))) {
		return Identity{}, invalid("init data signature mismatch")
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return Identity{}, invalid("init data has no auth_date")
	}
	authDate := time.Unix(authUnix, 0)
	if v.maxAge > 0 && v.now().Sub(authDate) > v.maxAge {
		return Identity{}, invalid("init data has expired")
	}

	var user tgbotapi.User
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return Identity{}, invalid("init data has no user")
	}
	return Identity{User: user, AuthDate: authDate}, nil
}

// DataCheckString joins every field but hash as sorted key=value lines.
func DataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}
	return strings.Join(lines, "\n")
}

// Sign computes the init data HMAC for botToken.
func Sign(botToken, dataCheckString string) []byte {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString))
	return mac.Sum(nil)
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodeForbidden, msg)
}
