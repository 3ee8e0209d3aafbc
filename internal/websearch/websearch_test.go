// File path: internal/websearch/websearch_test.go
package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(searchURL string) *Client {
	return New(Config{
		SearchURL: searchURL,
		MaxChars:  100,
		Timeout:   2 * time.Second,
	})
}

func TestSearchExtractsFirstResultPage(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<nav>ignored chrome</nav>
			<p>딸기 최적 온도는  20도 입니다.</p>
			<p>습도는 70% 내외가 좋습니다.</p>
		</body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`<html><body>
			<a class="result__a" href="` + server.URL + `/page">first</a>
			<a class="result__a" href="` + server.URL + `/other">second</a>
		</body></html>`))
	})

	client := newTestClient(server.URL + "/search")
	got := client.Search(context.Background(), "딸기 최적 온도", 2)
	if !strings.HasPrefix(got, "[출처: "+server.URL+"/page]") {
		t.Fatalf("expected source prefix, got %q", got)
	}
	if !strings.Contains(got, "딸기 최적 온도는 20도 입니다.") {
		t.Fatalf("expected paragraph text, got %q", got)
	}
}

func TestSearchUnwrapsRedirectLinks(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>redirected content</p></body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a class="result__a" href="/l/?uddg=` + server.URL + `%2Ftarget">first</a>
		</body></html>`))
	})

	client := newTestClient(server.URL + "/search")
	got := client.Search(context.Background(), "anything", 1)
	if !strings.Contains(got, "redirected content") {
		t.Fatalf("expected redirect target content, got %q", got)
	}
}

func TestSearchDegradesToSentinel(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no results</body></html>`))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	cases := []string{
		server.URL + "/empty",
		server.URL + "/fail",
		"http://127.0.0.1:1/unreachable",
	}
	for _, searchURL := range cases {
		client := newTestClient(searchURL)
		if got := client.Search(context.Background(), "query", 2); got != NoInformationFound {
			t.Errorf("searchURL %s: expected sentinel, got %q", searchURL, got)
		}
	}
}

func TestSearchTruncatesToMaxChars(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>` + strings.Repeat("a", 500) + `</p></body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a class="result__a" href="` + server.URL + `/page">r</a>`))
	})

	client := newTestClient(server.URL + "/search")
	got := client.Search(context.Background(), "query", 1)
	body := strings.SplitN(got, "\n", 2)[1]
	if len([]rune(body)) != 100 {
		t.Fatalf("expected body capped at 100 chars, got %d", len([]rune(body)))
	}
}
