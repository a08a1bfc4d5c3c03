package dispatch

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/quietwire/mercury/internal/models"
)

// validatedQuote resolves a quote against the referenced original
// message. When the original is found its stored body replaces the
// quote text, so edits and truncation by the sender cannot misquote
// it. A quote whose original is missing is kept as sent.
func (d *Dispatcher) validatedQuote(ctx context.Context, content *models.Content, quote *models.Quote) (*models.Quote, error) {
	if quote == nil {
		return nil, nil
	}

	author := d.masterAddress(quote.Author)
	original, err := d.store.FindMessage(ctx, quote.ID, author)
	if err != nil {
		return nil, err
	}
	if original == nil {
		log.Printf("dispatch: quoted message %d by %s not found, keeping quote as sent", quote.ID, quote.Author)
		return quote, nil
	}

	validated := *quote
	validated.Text = original.Body
	return &validated, nil
}

// validatedPreviews keeps only link previews that plausibly belong to
// the message: the URL must carry content, appear verbatim in the
// body, and resolve to a well-formed http(s) origin. Everything else
// is dropped silently.
func (d *Dispatcher) validatedPreviews(msg *models.DataMessage) []models.Preview {
	if len(msg.Previews) == 0 {
		return nil
	}

	valid := make([]models.Preview, 0, len(msg.Previews))
	for _, preview := range msg.Previews {
		hasContent := preview.Title != "" || preview.Image != nil
		presentInBody := preview.URL != "" && strings.Contains(msg.Body, preview.URL)
		if hasContent && presentInBody && validPreviewURL(preview.URL) {
			valid = append(valid, preview)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	return valid
}

func validPreviewURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := parsed.Hostname()
	return host != "" && strings.Contains(host, ".")
}
