// Package sources pulls reading material from links a user pastes into chat.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxURLs  = 2
	defaultMaxBytes = 2 << 20
	defaultMaxRunes = 8000
	defaultTimeout  = 10 * time.Second
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60]+`)

	errUnsupportedType = errors.New("unsupported content type")
	errBlockedAddress  = errors.New("destination address not allowed")
)

// Document is the extracted text of one link. Err is set when the link
// could not be used; the other links are still returned.
type Document struct {
	URL       string
	Title     string
	Text      string
	Truncated bool
	Err       error
}

type Options struct {
	MaxURLs  int
	MaxBytes int64
	MaxRunes int
	Timeout  time.Duration
	// AllowPrivateNetworks permits loopback and private destinations.
	AllowPrivateNetworks bool
}

// Fetcher downloads and extracts text from HTML, PDF and plain-text links.
type Fetcher struct {
	client   *http.Client
	maxURLs  int
	maxBytes int64
	maxRunes int
}

func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		maxURLs:  opts.MaxURLs,
		maxBytes: opts.MaxBytes,
		maxRunes: opts.MaxRunes,
	}
	if f.maxURLs <= 0 {
		f.maxURLs = defaultMaxURLs
	}
	if f.maxBytes <= 0 {
		f.maxBytes = defaultMaxBytes
	}
	if f.maxRunes <= 0 {
		f.maxRunes = defaultMaxRunes
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if !opts.AllowPrivateNetworks {
		dialer.Control = rejectPrivate
	}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
	return f
}

// ExtractURLs returns up to max distinct http(s) links in order of appearance.
func ExtractURLs(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?)]}")
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
		if len(out) == max {
			break
		}
	}
	return out
}

// FetchFromMessage fetches the links found in message.
func (f *Fetcher) FetchFromMessage(ctx context.Context, message string) []Document {
	return f.FetchAll(ctx, ExtractURLs(message, f.maxURLs))
}

// FetchAll downloads links concurrently. Results keep input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Document {
	if len(urls) > f.maxURLs {
		urls = urls[:f.maxURLs]
	}
	docs := make([]Document, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxURLs)
	for i, u := range urls {
		g.Go(func() error {
			docs[i] = f.fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) Document {
	doc := Document{URL: rawURL}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		doc.Err = err
		return doc
	}
	req.Header.Set("User-Agent", "groovie-reading-resource/1.0")
	req.Header.Set("Accept", "text/html, application/pdf, text/plain;q=0.9, */*;q=0.1")
	resp, err := f.client.Do(req)
	if err != nil {
		doc.Err = err
		return doc
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		doc.Err = fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		return doc
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		doc.Err = err
		return doc
	}
	if int64(len(body)) > f.maxBytes {
		body = body[:f.maxBytes]
		doc.Truncated = true
	}

	title, text, err := extract(contentType(resp.Header.Get("Content-Type"), body), body)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.Title = title
	text = normalizeText(text)
	if runes := []rune(text); len(runes) > f.maxRunes {
		text = string(runes[:f.maxRunes])
		doc.Truncated = true
	}
	doc.Text = text
	return doc
}

func contentType(header string, body []byte) string {
	if mediaType, _, err := mime.ParseMediaType(header); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	return mediaType
}

func extract(mediaType string, body []byte) (string, string, error) {
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return "", "", fmt.Errorf("parse html: %w", err)
		}
		return htmlTitle(doc), extractText(doc), nil
	case mediaType == "application/pdf":
		text, err := pdfText(body)
		return "", text, err
	case strings.HasPrefix(mediaType, "text/"):
		return "", string(body), nil
	default:
		return "", "", fmt.Errorf("%w: %s", errUnsupportedType, mediaType)
	}
}

// pdfText recovers from parser panics; the pdf library panics on some
// malformed documents instead of returning an error.
func pdfText(body []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.New("no text extracted from pdf")
	}
	return sb.String(), nil
}

func htmlTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return normalizeText(n.FirstChild.Data)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if title := htmlTitle(child); title != "" {
			return title
		}
	}
	return ""
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "noscript", "nav", "footer", "head":
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func rejectPrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return fmt.Errorf("%w: %s", errBlockedAddress, addr)
	}
	return nil
}
