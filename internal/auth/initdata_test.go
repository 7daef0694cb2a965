package auth

import (
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const testToken = "123456:ABC-DEF"

func signedInitData(token string, authDate time.Time, user string) string {
	vals := url.Values{}
	vals.Set("query_id", "AAH")
	vals.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	vals.Set("user", user)
	vals.Set("hash", Sign(token, vals))
	return vals.Encode()
}

func TestVerifier_Valid(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(testToken, time.Hour, clockwork.NewFakeClockAt(now))
	raw := signedInitData(testToken, now.Add(-time.Minute), `{"id":6821628014,"username":"neo"}`)

	got, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.User.ID != 6821628014 || got.User.Username != "neo" || got.QueryID != "AAH" {
		t.Fatalf("unexpected init data: %+v", got)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(testToken, time.Hour, clockwork.NewFakeClockAt(now))
	user := `{"id":42}`

	tampered, _ := url.ParseQuery(signedInitData(testToken, now, user))
	tampered.Set("user", `{"id":43}`)

	noHash, _ := url.ParseQuery(signedInitData(testToken, now, user))
	noHash.Del("hash")

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMissingInitData},
		{"no hash", noHash.Encode(), ErrMissingHash},
		{"wrong token", signedInitData("other:token", now, user), ErrBadSignature},
		{"tampered", tampered.Encode(), ErrBadSignature},
		{"expired", signedInitData(testToken, now.Add(-2*time.Hour), user), ErrExpired},
		{"no user id", signedInitData(testToken, now, `{"username":"x"}`), ErrNoUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.raw)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifier_NoMaxAge(t *testing.T) {
	v := NewVerifier(testToken, 0, nil)
	raw := signedInitData(testToken, time.Unix(1, 0), `{"id":7}`)
	if _, err := v.Verify(raw); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
