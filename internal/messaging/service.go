// Package messaging defines the pluggable outbound delivery abstraction.
//
// The state machine engine only ever talks to a Sender; the concrete
// backends live in internal/whatsapp (Cloud API, the default),
// internal/twiliowhatsapp and internal/meow.
package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/vbtlab/trainpipe/internal/models"
)

// Sender delivers replies to a single recipient. Implementations must bound
// every call with their own transport timeout; the engine never waits on an
// unbounded send.
type Sender interface {
	// SendText sends a plain text message.
	SendText(ctx context.Context, to string, body string) error

	// SendList sends an interactive list. Backends without native list
	// support degrade it with RenderListAsText.
	SendList(ctx context.Context, to string, list models.InteractiveList) error

	// SendDocument forwards a previously uploaded media document.
	SendDocument(ctx context.Context, to string, mediaID, filename string) error
}

// MediaFetcher retrieves uploaded media bytes. Only the Cloud API backend
// implements it; the document-import flow requires a Sender that is also a
// MediaFetcher.
type MediaFetcher interface {
	// DownloadMedia resolves a media id to its short-lived URL and fetches
	// the content.
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// CanonicalizeRecipient validates and canonicalizes a recipient identifier
// to the bare-digits wa_id form shared by all backends.
func CanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	r = strings.TrimPrefix(r, "whatsapp:")
	r = strings.TrimPrefix(r, "+")
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("recipient %q contains non-digit character %q", recipient, c)
		}
	}
	return r, nil
}

// RenderListAsText degrades an interactive list into a numbered text menu
// for backends that cannot send native list messages.
func RenderListAsText(list models.InteractiveList) string {
	var sb strings.Builder
	if list.Header != "" {
		sb.WriteString(list.Header)
		sb.WriteString("\n")
	}
	sb.WriteString(list.Body)
	n := 0
	for _, section := range list.Sections {
		for _, row := range section.Rows {
			n++
			sb.WriteString(fmt.Sprintf("\n%d. %s", n, row.Title))
			if row.Description != "" {
				sb.WriteString(": " + row.Description)
			}
		}
	}
	if list.Footer != "" {
		sb.WriteString("\n" + list.Footer)
	}
	return sb.String()
}
