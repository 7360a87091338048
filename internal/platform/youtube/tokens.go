package youtube

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileToken reads the bearer token from a file on every call, so an external
// refresher can rotate it without restarting the process.
type FileToken string

func (f FileToken) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", string(f))
	}
	return token, nil
}
