package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"focus-keeper/internal/apperr"
)

const (
	initDataHeader = "X-Telegram-Init-Data"
	maxBodyBytes   = 1 << 20
)

type requestBody struct {
	TgID        json.RawMessage `json:"tgId"`
	DurationMin *int            `json:"durationMin"`
}

type request struct {
	key  string
	body requestBody
}

// readRequest decodes the optional JSON body and resolves the caller's key.
// Identity is settled here, before any queue or store work.
func (s *Server) readRequest(r *http.Request) (request, error) {
	var req request
	if r.Body != nil && r.Method != http.MethodGet {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return req, apperr.Validation("unreadable body")
		}
		if len(data) > maxBodyBytes {
			return req, apperr.Validation("body too large")
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &req.body); err != nil {
				return req, apperr.Validation("invalid JSON body")
			}
		}
	}

	key, err := s.resolveKey(r, req.body.TgID)
	if err != nil {
		return req, err
	}
	req.key = key
	return req, nil
}

func (s *Server) resolveKey(r *http.Request, bodyID json.RawMessage) (string, error) {
	if raw := r.Header.Get(initDataHeader); raw != "" {
		if s.verifier == nil {
			return "", apperr.Unauthorized("init data cannot be verified", nil)
		}
		data, err := s.verifier.Verify(raw)
		if err != nil {
			return "", apperr.Unauthorized("invalid init data", err)
		}
		return strconv.FormatInt(data.User.ID, 10), nil
	}
	if s.requireInitData {
		return "", apperr.Unauthorized("init data required", nil)
	}

	if q := strings.TrimSpace(r.URL.Query().Get("tgId")); q != "" {
		return q, nil
	}
	id, err := parseTgID(bodyID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperr.Validation("tgId required")
	}
	return id, nil
}

// parseTgID accepts a JSON string or integer.
func parseTgID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", apperr.Validation("malformed tgId")
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", apperr.Validation("malformed tgId")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", apperr.Validation("malformed tgId")
	}
	return n.String(), nil
}
