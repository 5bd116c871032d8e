package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bycloud/cloudpilot/pkg/retry"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := New(Config{
		BaseURL:     ts.URL,
		Timeout:     5 * time.Second,
		RetryPolicy: retry.NoRetry(),
		Tokens:      staticToken("tok-123"),
	})
	return c, ts
}

func TestLogin_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != "alice@example.com" {
			t.Errorf("expected email in payload, got %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"at","refresh_token":"rt"}`)
	}))

	pair, err := c.Login(context.Background(), "alice@example.com", "pass123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.AccessToken != "at" || pair.RefreshToken != "rt" {
		t.Errorf("unexpected token pair: %+v", pair)
	}
}

func TestLogin_Failure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"invalid credentials"}`)
	}))

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if re.Status != http.StatusUnauthorized || re.Message != "invalid credentials" {
		t.Errorf("unexpected error: %+v", re)
	}
}

func TestListFiles_QueryAndEnvelope(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("expected bearer header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("userId") != "u1" || q.Get("directoryId") != "d1" ||
			q.Get("limit") != "20" || q.Get("offset") != "0" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"items":[{"id":"f1","fileName":"a.txt","fileSize":500}],"total":1,"limit":20,"offset":0}}`)
	}))

	page, err := c.ListFiles(context.Background(), "u1", "d1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "f1" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestListFiles_RootOmitsDirectoryID(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["directoryId"]; ok {
			t.Error("directoryId must be omitted for the root listing")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":[],"total":0,"limit":20,"offset":0}`)
	}))

	if _, err := c.ListFiles(context.Background(), "u1", "", 20, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadFiles_Multipart(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/files" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("userId") != "u1" {
			t.Errorf("expected userId in query, got %v", r.URL.Query())
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		headers := r.MultipartForm.File["files"]
		if len(headers) != 2 {
			t.Fatalf("expected 2 parts under 'files', got %d", len(headers))
		}
		if headers[0].Filename != "a.txt" || headers[1].Filename != "b.bin" {
			t.Errorf("unexpected filenames: %v, %v", headers[0].Filename, headers[1].Filename)
		}
		if ct := headers[0].Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("expected detected text content type, got %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"files":[{"id":"f1","fileName":"a.txt"},{"id":"f2","fileName":"b.bin"}]}}`)
	}))

	result, err := c.UploadFiles(context.Background(), "u1", "", []UploadPart{
		{Name: "a.txt", Content: []byte("hello world\n")},
		{Name: "b.bin", Content: []byte{0x00, 0x01, 0x02}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Files) != 2 || result.Files[0].ID != "f1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDownload_DirectBinary(t *testing.T) {
	content := "binary-content-here"
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files/download/f1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, content)
	}))

	rc, info, err := c.Download(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("unexpected content: %q", data)
	}
	if info.FileName != "report.pdf" || info.MimeType != "application/pdf" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestDownload_LinkIndirection(t *testing.T) {
	var linkHit bool
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files/download/f1":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"data":{"link":"/storage/objects/f1"}}`)
		case "/storage/objects/f1":
			linkHit = true
			if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
				t.Errorf("link fetch must carry auth, got %q", got)
			}
			io.WriteString(w, "object-bytes")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	rc, _, err := c.Download(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "object-bytes" {
		t.Errorf("unexpected content: %q", data)
	}
	if !linkHit {
		t.Error("expected the link target to be fetched")
	}
}

func TestDownload_Unauthorized(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, _, err := c.Download(context.Background(), "f1")
	if !IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestCall_RetriesServerErrors(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":[]}`)
	}))
	defer ts.Close()

	c := New(Config{
		BaseURL: ts.URL,
		RetryPolicy: retry.Policy{
			MaxAttempts: 3, InitialWait: time.Millisecond,
			MaxWait: time.Millisecond, Multiplier: 1,
		},
		Tokens: staticToken("tok"),
	})

	if _, err := c.ListDirectories(context.Background(), "u1", ""); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestCall_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(Config{
		BaseURL: ts.URL,
		RetryPolicy: retry.Policy{
			MaxAttempts: 3, InitialWait: time.Millisecond,
			MaxWait: time.Millisecond, Multiplier: 1,
		},
		Tokens: staticToken("tok"),
	})

	if _, err := c.ListDirectories(context.Background(), "u1", ""); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}

func TestLogout_SwallowsServerFailure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	// Must not panic or surface the failure.
	c.Logout(context.Background())
}
