package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCREngine turns image bytes into text. Implementations must respect
// ctx cancellation by returning promptly once it is done.
type OCREngine interface {
	Text(ctx context.Context, image []byte, lang string) (string, error)
}

// TesseractEngine is the default OCREngine, backed by gosseract. One
// client per call: the cgo client is not safe for concurrent reuse.
type TesseractEngine struct{}

func (TesseractEngine) Text(ctx context.Context, image []byte, lang string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		client := gosseract.NewClient()
		defer client.Close()
		if lang != "" {
			if err := client.SetLanguage(lang); err != nil {
				ch <- result{err: fmt.Errorf("set language: %w", err)}
				return
			}
		}
		if err := client.SetImageFromBytes(image); err != nil {
			ch <- result{err: fmt.Errorf("set image: %w", err)}
			return
		}
		text, err := client.Text()
		ch <- result{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.text, r.err
	}
}
