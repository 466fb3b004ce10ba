package qbo

import (
	"context"
	"errors"
	"os"
	"strings"
)

// FileToken reads the access token from a file on every call, so an external
// refresher can rotate the token without restarting the service.
type FileToken string

func (t FileToken) Token(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(string(t))
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("qbo token file is empty")
	}
	return token, nil
}

// TokenSourceFromEnv builds the operator-supplied token source:
// QBO_ACCESS_TOKEN_FILE wins over QBO_ACCESS_TOKEN.
func TokenSourceFromEnv() (TokenSource, error) {
	if path := strings.TrimSpace(os.Getenv("QBO_ACCESS_TOKEN_FILE")); path != "" {
		return FileToken(path), nil
	}
	if token := strings.TrimSpace(os.Getenv("QBO_ACCESS_TOKEN")); token != "" {
		return StaticToken(token), nil
	}
	return nil, errors.New("QBO_ACCESS_TOKEN or QBO_ACCESS_TOKEN_FILE must be set")
}
