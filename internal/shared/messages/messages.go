package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render substitutes {institution} in the title and body.
func (m MessageText) Render(institution string) MessageText {
	r := strings.NewReplacer("{institution}", institution)
	return MessageText{Title: r.Replace(m.Title), Body: r.Replace(m.Body)}
}

type Messages struct {
	MFARequired MessageText `json:"mfa_required"`
	SyncFailed  MessageText `json:"sync_failed"`
}

// Default returns the built-in notification texts.
func Default() *Messages {
	return &Messages{
		MFARequired: MessageText{
			Title: "Action needed",
			Body:  "{institution} is asking you to confirm your identity before we can refresh your accounts.",
		},
		SyncFailed: MessageText{
			Title: "Sync failed",
			Body:  "We could not refresh your {institution} accounts. We will try again later.",
		},
	}
}

// Load reads a notifications JSON file over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Default()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := json.Unmarshal(data, msgs); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return msgs, nil
}
