// Package token issues and validates HMAC signed client tokens.
//
// A token is the standard base64 encoding of "uid|app_id|unix_seconds"
// followed by a dot and the hex encoded HMAC-SHA256 of the unencoded
// payload. Tokens carry no expiry and are never revoked.
package token

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/crypto"
)

const (
	fieldSeparator     = "|"
	signatureSeparator = "."
	invalidTokenMsg    = "Invalid client_token"
)

// service is an implementation of iap.TokenService. It holds no
// mutable state and is safe for concurrent use.
type service struct {
	logger log.Logger
	secret []byte
	now    func() time.Time
}

// Issue creates a signed token for a uid and app.
func (s *service) Issue(tokenID, uid string, appID int64) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	if uid == "" || strings.Contains(uid, fieldSeparator) {
		return "", errors.Errorf("uid %q cannot be encoded", uid)
	}

	issuedAt := s.now().Unix()
	payload := strings.Join([]string{
		uid,
		strconv.FormatInt(appID, 10),
		strconv.FormatInt(issuedAt, 10),
	}, fieldSeparator)

	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	signature := crypto.Sign(s.secret, []byte(payload))

	level.Debug(s.logger).Log(
		"message", "client token issued",
		"token_id", tokenID,
		"uid", uid,
		"app_id", appID,
		"source", "token.Issue",
	)

	return encoded + signatureSeparator + signature, nil
}

// Validate decodes a token and verifies its signature.
func (s *service) Validate(token string) (*iap.Identity, error) {
	idx := strings.LastIndex(token, signatureSeparator)
	if idx < 0 {
		return nil, errors.Wrap(iap.ErrMalformedToken(invalidTokenMsg), "missing signature separator")
	}

	encoded, signature := token[:idx], token[idx+1:]
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, iap.ErrMalformedToken(invalidTokenMsg))
	}

	fields := strings.Split(string(payload), fieldSeparator)
	if len(fields) != 3 || fields[0] == "" {
		return nil, errors.Wrapf(iap.ErrMalformedToken(invalidTokenMsg),
			"expected 3 payload fields, found %d", len(fields))
	}

	appID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("app_id: %v: %w", err, iap.ErrMalformedToken(invalidTokenMsg))
	}

	issuedAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %v: %w", err, iap.ErrMalformedToken(invalidTokenMsg))
	}

	if !crypto.Verify(s.secret, payload, signature) {
		return nil, iap.ErrBadSignature(invalidTokenMsg)
	}

	return &iap.Identity{
		UID:      fields[0],
		AppID:    appID,
		IssuedAt: time.Unix(issuedAt, 0).UTC(),
	}, nil
}
