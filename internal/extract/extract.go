package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
)

// Renderer produces an HTML snapshot of a script-driven page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Extractor fetches a URL and produces normalized textual content.
// Static fetch first; headless rendering only when the static result
// looks script-generated and budget allows.
type Extractor struct {
	cfg      config.ExtractConfig
	logger   *log.Logger
	client   *http.Client
	renderer Renderer
}

// New creates an Extractor. A nil renderer disables the headless
// fallback entirely (static results are returned as-is).
func New(cfg config.ExtractConfig, renderer Renderer) *Extractor {
	return &Extractor{
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
		client:   &http.Client{Timeout: cfg.StaticTimeout},
		renderer: renderer,
	}
}

// Extract fetches url within the deadline carried by ctx.
// Failure kinds: solver.ErrInvalidURL (fatal), solver.ErrNetwork
// (retryable once by the caller), solver.ErrRenderTimeout (best-effort
// static content is still returned alongside the error).
func (e *Extractor) Extract(ctx context.Context, rawURL string) (solver.PageContent, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return solver.PageContent{}, fmt.Errorf("%w: %q", solver.ErrInvalidURL, rawURL)
	}

	html, err := e.fetchStatic(ctx, u.String())
	if err != nil {
		return solver.PageContent{}, err
	}

	content := e.buildContent(u, html, false)
	if !e.needsRender(content) {
		return content, nil
	}

	rendered, rerr := e.render(ctx, u.String())
	if rerr != nil {
		// Degrade to the static snapshot rather than blocking the step.
		e.logger.Printf("render fallback failed for %s: %v", u, rerr)
		if errors.Is(rerr, solver.ErrRenderTimeout) {
			return content, rerr
		}
		return content, nil
	}
	return e.buildContent(u, rendered, true), nil
}

func (e *Extractor) fetchStatic(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", solver.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", solver.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d from %s", solver.ErrNetwork, resp.StatusCode, url)
	}

	limit := int64(e.cfg.MaxChars) * 4
	if limit <= 0 {
		limit = 4 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", solver.ErrNetwork, err)
	}
	return string(body), nil
}

// render runs the headless fallback, skipping it when the remaining
// budget is below the configured floor.
func (e *Extractor) render(ctx context.Context, url string) (string, error) {
	if e.renderer == nil {
		return "", fmt.Errorf("no renderer configured")
	}
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < e.cfg.RenderFloor {
			return "", fmt.Errorf("%w: %s remaining is below render floor", solver.ErrRenderTimeout, time.Until(deadline).Round(time.Second))
		}
	}
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RenderTimeout)
	defer cancel()

	html, err := e.renderer.Render(rctx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || rctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", solver.ErrRenderTimeout, err)
		}
		return "", err
	}
	return html, nil
}

// needsRender is the pinned script-rendered heuristic: too little
// visible text, or known loading-placeholder markers.
func (e *Extractor) needsRender(c solver.PageContent) bool {
	if e.renderer == nil {
		return false
	}
	text := strings.TrimSpace(c.Text)
	if len(text) < e.cfg.MinVisibleChars {
		return true
	}
	lower := strings.ToLower(c.HTML)
	for _, marker := range []string{"loading...", "please enable javascript", "<noscript"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (e *Extractor) buildContent(u *url.URL, html string, rendered bool) solver.PageContent {
	text := articleText(html, u)
	if text == "" {
		text = stripTags(html)
	}
	if e.cfg.MaxChars > 0 && len(text) > e.cfg.MaxChars {
		text = text[:e.cfg.MaxChars]
	}

	scripts := scriptBodies(html)
	instructions := decodeBase64Payloads(scripts)
	combined := text
	if instructions != "" {
		combined = text + "\n\nDecoded Instructions:\n" + instructions
	}

	return solver.PageContent{
		URL:          u.String(),
		HTML:         html,
		Text:         combined,
		Resources:    resourceURLs(combined, html, u),
		SubmitURL:    submitURL(combined, html, u),
		Instructions: instructions,
		APIHeaders:   apiHeaders(combined),
		AnswerKind:   detectAnswerKind(combined),
		Rendered:     rendered,
	}
}

// articleText extracts readable text with readability; empty on failure.
func articleText(html string, u *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
