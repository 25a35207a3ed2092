package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractURLs(t *testing.T) {
	msg := "Compare https://a.example/owls. and (https://b.example/moon?x=1), then https://a.example/owls again plus https://c.example"
	got := ExtractURLs(msg, 2)
	want := []string{"https://a.example/owls", "https://b.example/moon?x=1"}
	if len(got) != len(want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("urls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ExtractURLs("no links here", 2) != nil {
		t.Fatalf("expected no urls")
	}
}

func newTestFetcher(opts Options) *Fetcher {
	opts.AllowPrivateNetworks = true
	return NewFetcher(opts)
}

func TestFetchAllExtractsHTMLAndText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/story", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> Owl Moon </title><style>p{}</style></head>
<body><nav>menu</nav><p>It was late one winter night.</p><script>alert(1)</script><p>Pa and I went owling.</p></body></html>`))
	})
	mux.HandleFunc("/notes.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("owls   are\nnocturnal"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(Options{})
	docs := f.FetchAll(context.Background(), []string{srv.URL + "/story", srv.URL + "/notes.txt"})
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].Err != nil || docs[0].Title != "Owl Moon" {
		t.Fatalf("unexpected html doc: %+v", docs[0])
	}
	if docs[0].Text != "It was late one winter night. Pa and I went owling." {
		t.Fatalf("html text = %q", docs[0].Text)
	}
	if docs[1].Err != nil || docs[1].Text != "owls are nocturnal" {
		t.Fatalf("unexpected text doc: %+v", docs[1])
	}
}

func TestFetchRecordsPerURLErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(Options{})
	docs := f.FetchAll(context.Background(), []string{srv.URL + "/missing", srv.URL + "/image.png"})
	if docs[0].Err == nil || !strings.Contains(docs[0].Err.Error(), "404") {
		t.Fatalf("expected 404 error, got %+v", docs[0])
	}
	if !errors.Is(docs[1].Err, errUnsupportedType) {
		t.Fatalf("expected unsupported type, got %v", docs[1].Err)
	}
}

func TestFetchTruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{MaxBytes: 1024, MaxRunes: 100})
	docs := f.FetchAll(context.Background(), []string{srv.URL})
	if docs[0].Err != nil || !docs[0].Truncated || len(docs[0].Text) != 100 {
		t.Fatalf("unexpected doc: truncated=%v len=%d err=%v", docs[0].Truncated, len(docs[0].Text), docs[0].Err)
	}
}

func TestFetchCapsURLCount(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{MaxURLs: 1})
	docs := f.FetchFromMessage(context.Background(), "read "+srv.URL+"/a and "+srv.URL+"/b")
	if len(docs) != 1 || hits != 1 {
		t.Fatalf("docs=%d hits=%d, want 1/1", len(docs), hits)
	}
}

func TestFetchBlocksPrivateAddressesByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	f := NewFetcher(Options{})
	docs := f.FetchAll(context.Background(), []string{srv.URL})
	if !errors.Is(docs[0].Err, errBlockedAddress) {
		t.Fatalf("expected blocked address error, got %v", docs[0].Err)
	}
}

func TestFetchMalformedPDFReturnsError(t *testing.T) {
	body := "%PDF-1.4\n" + strings.Repeat("\n", 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{})
	docs := f.FetchFromMessage(context.Background(), "read "+srv.URL+"/book.pdf")
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	if docs[0].Err == nil || docs[0].Text != "" {
		t.Fatalf("expected parse error for malformed pdf, got %+v", docs[0])
	}

	if _, err := pdfText([]byte(body)); err == nil {
		t.Fatalf("pdfText should report malformed input")
	}
}
