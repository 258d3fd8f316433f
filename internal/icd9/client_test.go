package icd9

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// searchPage mimics the result layout of the lookup site.
func searchPage(entries ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"results\">")
	for _, e := range entries {
		b.WriteString(e)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

const (
	entry4280 = `<div class="dlvl"><a href="?action=child&recordid=1">4280</a> Congestive heart failure, unspecified</div>`
	entry428  = `<div class="dlvl"><a href="?action=child&recordid=2">428</a>
		Heart   failure</div>`
	entry250 = `<div class="lvl2 dlvl"><b>250</b> Diabetes mellitus</div>`
)

func TestParseDescription(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		code    string
		want    string
		wantErr error
	}{
		{"single entry", searchPage(entry428), "428", "Heart failure", nil},
		{"longer code listed first", searchPage(entry4280, entry428), "428", "Heart failure", nil},
		{"exact longer code", searchPage(entry4280, entry428), "4280", "Congestive heart failure, unspecified", nil},
		{"multiple classes", searchPage(entry250), "250", "Diabetes mellitus", nil},
		{"no entries", searchPage(), "428", "", ErrNotFound},
		{"other class", searchPage(`<div class="lvl1">428 Heart failure</div>`), "428", "", ErrNotFound},
		{"code only", searchPage(`<div class="dlvl">428</div>`), "428", "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDescription(strings.NewReader(tt.page), tt.code)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDescription: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	queries  []string
	agents   []string
	failCode string
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	code := r.URL.Query().Get("srchtext")
	f.queries = append(f.queries, r.URL.RawQuery)
	f.agents = append(f.agents, r.Header.Get("User-Agent"))

	if code == f.failCode {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	page, ok := f.pages[code]
	if !ok {
		page = searchPage()
	}
	fmt.Fprint(w, page)
}

func newTestClient(t *testing.T, site *fakeSite, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	return New(append([]Option{WithBaseURL(srv.URL + "/index.php"), WithDelay(0)}, opts...)...)
}

func TestLookup(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"428": searchPage(entry4280, entry428)}}
	c := newTestClient(t, site)

	got, err := c.Lookup(context.Background(), "428")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "Heart failure" {
		t.Errorf("got %q", got)
	}
	if site.queries[0] != "action=search&srchtext=428" {
		t.Errorf("query = %q", site.queries[0])
	}
	if site.agents[0] != DefaultUserAgent {
		t.Errorf("user agent = %q", site.agents[0])
	}

	if _, err := c.Lookup(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupStatusError(t *testing.T) {
	site := &fakeSite{failCode: "428"}
	c := newTestClient(t, site)

	_, err := c.Lookup(context.Background(), "428")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected status error, got %v", err)
	}
	if len(site.queries) != 1 {
		t.Errorf("requests = %d, want 1 (no retries)", len(site.queries))
	}
}

func TestLookupAllPlaceholders(t *testing.T) {
	site := &fakeSite{
		pages: map[string]string{
			"428": searchPage(entry428),
			"250": searchPage(entry250),
		},
		failCode: "414",
	}
	c := newTestClient(t, site, WithUserAgent("diabclean-test"))

	results := c.LookupAll(context.Background(), []string{"428", "414", "V57", "250"})
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}

	want := []Result{
		{Code: "428", Description: "Heart failure", Found: true},
		{Code: "414", Description: NotFound},
		{Code: "V57", Description: NotFound},
		{Code: "250", Description: "Diabetes mellitus", Found: true},
	}
	for i, w := range want {
		got := results[i]
		if got.Code != w.Code || got.Description != w.Description || got.Found != w.Found {
			t.Errorf("result[%d] = %+v, want %+v", i, got, w)
		}
		if got.FetchedAt.IsZero() {
			t.Errorf("result[%d] has no fetch time", i)
		}
	}
	if site.agents[0] != "diabclean-test" {
		t.Errorf("user agent = %q", site.agents[0])
	}
}

func TestLookupAllPacing(t *testing.T) {
	site := &fakeSite{pages: map[string]string{}}
	c := newTestClient(t, site, WithDelay(50*time.Millisecond))

	start := time.Now()
	c.LookupAll(context.Background(), []string{"1", "2", "3"})
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("3 lookups took %v, want at least 2 delays", elapsed)
	}
}

func TestLookupAllCancelled(t *testing.T) {
	site := &fakeSite{pages: map[string]string{}}
	c := newTestClient(t, site, WithDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := c.LookupAll(ctx, []string{"1", "2", "3"})
	if len(results) != 1 {
		t.Errorf("results = %d, want only the first before cancellation", len(results))
	}
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	err := WriteResults(&buf, []Result{
		{Code: "428", Description: "Heart failure"},
		{Code: "250.01", Description: "Diabetes mellitus, type I"},
	})
	if err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	want := "code,description\n428,Heart failure\n250.01,\"Diabetes mellitus, type I\"\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
}
