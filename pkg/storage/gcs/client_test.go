package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func staticTokens() *tokenSource {
	return &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		return "token", time.Now().Add(time.Hour), nil
	}}
}

func TestUploadPostsMediaAndDecodesObject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/upload/storage/v1/b/user-avatars/o" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "u-1-1700000000000.png" {
			t.Errorf("unexpected object name %q", got)
		}
		if r.URL.Query().Get("uploadType") != "media" {
			t.Errorf("expected media upload")
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("unexpected auth %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected content type %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "png-bytes" {
			t.Errorf("unexpected body %q", body)
		}
		_ = json.NewEncoder(w).Encode(Object{Bucket: "user-avatars", Name: "u-1-1700000000000.png", ContentType: "image/png"})
	}))
	defer srv.Close()

	client := &Client{
		httpClient:    srv.Client(),
		apiBase:       srv.URL,
		publicBase:    "https://storage.googleapis.com",
		defaultBucket: "user-avatars",
		tokenSource:   staticTokens(),
	}

	obj, err := client.Upload(context.Background(), "", "u-1-1700000000000.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if obj.Name != "u-1-1700000000000.png" || obj.Bucket != "user-avatars" {
		t.Fatalf("unexpected object %+v", obj)
	}
}

func TestUploadSurfacesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden bucket", http.StatusForbidden)
	}))
	defer srv.Close()

	client := &Client{httpClient: srv.Client(), apiBase: srv.URL, defaultBucket: "user-avatars", tokenSource: staticTokens()}
	_, err := client.Upload(context.Background(), "", "a.png", "image/png", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "forbidden bucket") {
		t.Fatalf("expected status error with body, got %v", err)
	}
}

func TestUploadRequiresObjectName(t *testing.T) {
	client := &Client{defaultBucket: "user-avatars", tokenSource: staticTokens()}
	if _, err := client.Upload(context.Background(), "", " ", "", strings.NewReader("")); err == nil {
		t.Fatal("expected missing object name error")
	}
}

func TestPublicURL(t *testing.T) {
	client := &Client{publicBase: "https://storage.googleapis.com", defaultBucket: "user-avatars"}
	got := client.PublicURL("", "avatars/u 1.png")
	want := "https://storage.googleapis.com/user-avatars/avatars/u%201.png"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPingChecksBucket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/user-avatars/o" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := &Client{httpClient: srv.Client(), apiBase: srv.URL, defaultBucket: "user-avatars", tokenSource: staticTokens()}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	client.defaultBucket = "missing"
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping against unknown bucket to fail")
	}
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	calls := 0
	ts := &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		calls++
		return "t", time.Now().Add(time.Hour), nil
	}}
	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestServiceAccountTokenSourceParsesKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	creds, _ := json.Marshal(map[string]string{
		"client_email": "avatars@example.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
	})

	if _, err := newServiceAccountTokenSource(http.DefaultClient, string(creds)); err != nil {
		t.Fatalf("expected credentials to parse: %v", err)
	}
	if _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":"x"}`); err == nil {
		t.Fatal("expected missing private key to fail")
	}
}
