// Package icd9 looks up ICD-9 diagnosis code descriptions on a public
// search site, one request per code, at a fixed pace.
package icd9

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "http://icd9.chrisendres.com/index.php"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultDelay     = time.Second

	// NotFound replaces the description of codes that could not be resolved.
	NotFound = "Description not found"
)

var ErrNotFound = errors.New("icd9: description not found")

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the search page URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithDelay sets the minimum spacing between requests in LookupAll. Zero
// disables pacing.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used by LookupAll.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client fetches descriptions from the search site. Requests are never
// retried.
type Client struct {
	baseURL   string
	userAgent string
	delay     time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// New creates a Client with the default site, user agent and one-second
// pacing.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		delay:     DefaultDelay,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}

	limit := rate.Inf
	if c.delay > 0 {
		limit = rate.Every(c.delay)
	}
	c.limiter = rate.NewLimiter(limit, 1)
	return c
}

// SearchURL returns the search page URL for code.
func (c *Client) SearchURL(code string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("action", "search")
	q.Set("srchtext", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Lookup fetches and parses the search page for one code. A page without a
// matching entry yields ErrNotFound.
func (c *Client) Lookup(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("lookup: empty code")
	}

	target, err := c.SearchURL(code)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", code, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("lookup %s: status %d", code, resp.StatusCode)
	}

	desc, err := ParseDescription(resp.Body, code)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", code, err)
	}
	return desc, nil
}

// Result is the outcome of one code in LookupAll.
type Result struct {
	Code        string
	Description string
	Found       bool
	FetchedAt   time.Time
}

// LookupAll resolves codes in order, pacing requests by the client delay.
// Codes that fail are logged and get the NotFound placeholder. Cancelling
// ctx stops the loop; results resolved so far are returned.
func (c *Client) LookupAll(ctx context.Context, codes []string) []Result {
	results := make([]Result, 0, len(codes))
	for _, code := range codes {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn().Err(err).Int("resolved", len(results)).Msg("lookup stopped")
			break
		}

		c.log.Debug().Str("code", code).Msg("looking up code")
		desc, err := c.Lookup(ctx, code)
		if ctx.Err() != nil {
			c.log.Warn().Err(ctx.Err()).Int("resolved", len(results)).Msg("lookup stopped")
			break
		}

		r := Result{Code: code, Description: desc, Found: err == nil, FetchedAt: time.Now().UTC()}
		if err != nil {
			r.Description = NotFound
			if errors.Is(err, ErrNotFound) {
				c.log.Info().Str("code", code).Msg("description not found")
			} else {
				c.log.Warn().Err(err).Str("code", code).Msg("lookup failed")
			}
		} else {
			c.log.Info().Str("code", code).Str("description", desc).Msg("found")
		}
		results = append(results, r)
	}
	return results
}

// ParseDescription scans an HTML search page for the first div of class
// "dlvl" whose text starts with code followed by a space or the end of the
// text, and returns the rest of that text.
func ParseDescription(r io.Reader, code string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "dlvl") {
			if desc, ok := cutCode(nodeText(n), code); ok {
				found = desc
				return true
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	if !walk(doc) {
		return "", ErrNotFound
	}
	return found, nil
}

// cutCode strips code from the start of text. "4280 Congestive" does not
// match code "428".
func cutCode(text, code string) (string, bool) {
	rest, ok := strings.CutPrefix(text, code)
	if !ok {
		return "", false
	}
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// nodeText joins the text below n with single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// WriteResults writes results as a code,description CSV.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "description"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write([]string{r.Code, r.Description}); err != nil {
			return fmt.Errorf("write %s: %w", r.Code, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
