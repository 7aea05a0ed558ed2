package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ClientID returns the stable per-install identifier stored next to the
// session file, creating one on first use. It is sent as X-Client-Id so the
// portal can tell concurrent devices apart.
func ClientID(sessionFile string) string {
	path := filepath.Join(filepath.Dir(sessionFile), "client-id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err == nil {
		_ = os.WriteFile(path, []byte(id+"\n"), 0o600)
	}
	return id
}
