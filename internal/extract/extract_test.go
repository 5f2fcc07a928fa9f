package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
)

func testExtractCfg() config.ExtractConfig {
	return config.ExtractConfig{
		StaticTimeout:   5 * time.Second,
		RenderTimeout:   time.Second,
		RenderFloor:     time.Millisecond,
		MinVisibleChars: 30,
		MaxChars:        20000,
		UserAgent:       "quizchain-test",
	}
}

type rendererStub struct {
	html  string
	err   error
	calls int
}

func (r *rendererStub) Render(ctx context.Context, url string) (string, error) {
	r.calls++
	return r.html, r.err
}

func TestExtractStaticPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "quizchain-test" {
			t.Errorf("user agent = %q", got)
		}
		w.Write([]byte(`<html><body><p>What is the sum of 2 and 2? This question has plenty of visible text for the heuristic.</p></body></html>`))
	}))
	defer ts.Close()

	e := New(testExtractCfg(), nil)
	page, err := e.Extract(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(page.Text, "sum of 2 and 2") {
		t.Fatalf("text = %q", page.Text)
	}
	if page.Rendered {
		t.Fatal("static page must not be marked rendered")
	}
	if page.AnswerKind != solver.AnswerNumber {
		t.Fatalf("answer kind = %s, want number", page.AnswerKind)
	}
}

func TestExtractInvalidURL(t *testing.T) {
	e := New(testExtractCfg(), nil)
	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative"} {
		if _, err := e.Extract(context.Background(), raw); !errors.Is(err, solver.ErrInvalidURL) {
			t.Errorf("Extract(%q) err = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestExtractNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	e := New(testExtractCfg(), nil)
	if _, err := e.Extract(context.Background(), ts.URL); !errors.Is(err, solver.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestExtractEscalatesToRenderer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Loading...</body></html>`))
	}))
	defer ts.Close()

	renderer := &rendererStub{html: `<html><body><p>The rendered question asks for the total of the attached table rows.</p></body></html>`}
	e := New(testExtractCfg(), renderer)
	page, err := e.Extract(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if renderer.calls != 1 {
		t.Fatalf("renderer calls = %d, want 1", renderer.calls)
	}
	if !page.Rendered {
		t.Fatal("page must be marked rendered")
	}
	if !strings.Contains(page.Text, "rendered question") {
		t.Fatalf("text = %q", page.Text)
	}
}

func TestExtractRenderFailureDegradesToStatic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Loading...</body></html>`))
	}))
	defer ts.Close()

	renderer := &rendererStub{err: errors.New("chrome crashed")}
	e := New(testExtractCfg(), renderer)
	page, err := e.Extract(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if page.Rendered {
		t.Fatal("failed render must fall back to static content")
	}
}

func TestExtractSkipsRenderBelowFloor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Loading...</body></html>`))
	}))
	defer ts.Close()

	cfg := testExtractCfg()
	cfg.RenderFloor = time.Hour
	renderer := &rendererStub{html: "<html><body>never seen</body></html>"}
	e := New(cfg, renderer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := e.Extract(ctx, ts.URL)
	if !errors.Is(err, solver.ErrRenderTimeout) {
		t.Fatalf("err = %v, want ErrRenderTimeout", err)
	}
	if renderer.calls != 0 {
		t.Fatal("renderer must not run below the floor")
	}
	// Best-effort static content still comes back with the error.
	if page.URL == "" {
		t.Fatal("static content missing alongside render timeout")
	}
}

func TestNeedsRenderHeuristic(t *testing.T) {
	e := New(testExtractCfg(), &rendererStub{})
	cases := []struct {
		name string
		page solver.PageContent
		want bool
	}{
		{"enough text", solver.PageContent{Text: strings.Repeat("word ", 20), HTML: "<html></html>"}, false},
		{"too little text", solver.PageContent{Text: "hi", HTML: "<html></html>"}, true},
		{"loading marker", solver.PageContent{Text: strings.Repeat("word ", 20), HTML: "<div>Loading...</div>"}, true},
		{"noscript marker", solver.PageContent{Text: strings.Repeat("word ", 20), HTML: "<noscript>enable js</noscript>"}, true},
		{"enable javascript", solver.PageContent{Text: strings.Repeat("word ", 20), HTML: "Please enable JavaScript"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.needsRender(tc.page); got != tc.want {
				t.Fatalf("needsRender = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNeedsRenderWithoutRenderer(t *testing.T) {
	e := New(testExtractCfg(), nil)
	if e.needsRender(solver.PageContent{Text: "x"}) {
		t.Fatal("nil renderer must disable escalation")
	}
}
