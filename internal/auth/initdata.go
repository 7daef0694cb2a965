package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrMissingInitData = errors.New("init data missing")
	ErrMissingHash     = errors.New("hash missing in init data")
	ErrBadSignature    = errors.New("init data signature mismatch")
	ErrExpired         = errors.New("init data expired")
	ErrNoUser          = errors.New("user missing in init data")
)

// WebAppUser is the "user" field of Telegram WebApp init data.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type InitData struct {
	User     WebAppUser
	AuthDate time.Time
	QueryID  string
}

// Verifier checks the signature Telegram attaches to mini-app init data.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	clock  clockwork.Clock
}

// NewVerifier returns a verifier for botToken. maxAge <= 0 disables the
// auth_date freshness check.
func NewVerifier(botToken string, maxAge time.Duration, clock clockwork.Clock) *Verifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Verifier{secret: secretKey(botToken), maxAge: maxAge, clock: clock}
}

func (v *Verifier) Verify(raw string) (InitData, error) {
	if raw == "" {
		return InitData{}, ErrMissingInitData
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("parse init data: %w", err)
	}
	got := vals.Get("hash")
	if got == "" {
		return InitData{}, ErrMissingHash
	}
	vals.Del("hash")

	want := sign(v.secret, vals)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(got))) {
		return InitData{}, ErrBadSignature
	}

	var out InitData
	out.QueryID = vals.Get("query_id")
	if s := vals.Get("auth_date"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("parse auth_date: %w", err)
		}
		out.AuthDate = time.Unix(sec, 0).UTC()
	}
	if v.maxAge > 0 && (out.AuthDate.IsZero() || v.clock.Since(out.AuthDate) > v.maxAge) {
		return InitData{}, ErrExpired
	}

	rawUser := vals.Get("user")
	if rawUser == "" {
		return InitData{}, ErrNoUser
	}
	if err := json.Unmarshal([]byte(rawUser), &out.User); err != nil {
		return InitData{}, fmt.Errorf("decode user: %w", err)
	}
	if out.User.ID == 0 {
		return InitData{}, ErrNoUser
	}
	return out, nil
}

// Sign returns the hash Telegram would attach to vals for botToken.
func Sign(botToken string, vals url.Values) string {
	return sign(secretKey(botToken), vals)
}

func secretKey(botToken string) []byte {
	m := hmac.New(sha256.New, []byte("WebAppData"))
	m.Write([]byte(botToken))
	return m.Sum(nil)
}

func sign(secret []byte, vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+vals.Get(k))
	}
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(m.Sum(nil))
}
