package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ambient = Credentials{
	AccessKeyId:     "AKIDAMBIENT",
	SecretAccessKey: "ambient-secret",
}

func TestResolve_AmbientPassthrough(t *testing.T) {
	t.Parallel()

	p := NewProvider(ambient, "", "us-east-1")
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ambient {
		t.Errorf("ambient credentials changed: %+v", got)
	}
}

func TestResolve_AssumeRole(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("Action") != "AssumeRole" {
			t.Errorf("expected AssumeRole action, got %q", q.Get("Action"))
		}
		if q.Get("RoleArn") != "arn:aws:iam::123456789012:role/transcribe-client" {
			t.Errorf("unexpected role arn %q", q.Get("RoleArn"))
		}
		if q.Get("RoleSessionName") == "" {
			t.Error("expected a generated session name")
		}
		if q.Get("X-Amz-Signature") == "" {
			t.Error("expected request to be signed")
		}

		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<AssumeRoleResponse>
  <AssumeRoleResult>
    <Credentials>
      <AccessKeyId>ASIASHORTLIVED</AccessKeyId>
      <SecretAccessKey>short-lived-secret</SecretAccessKey>
      <SessionToken>session-token</SessionToken>
      <Expiration>2024-06-01T13:00:00Z</Expiration>
    </Credentials>
  </AssumeRoleResult>
</AssumeRoleResponse>`))
	}))
	defer srv.Close()

	p := NewProvider(ambient, "arn:aws:iam::123456789012:role/transcribe-client", "us-east-1",
		WithEndpoint(srv.URL),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }),
	)

	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Credentials{
		AccessKeyId:     "ASIASHORTLIVED",
		SecretAccessKey: "short-lived-secret",
		SessionToken:    "session-token",
	}
	if got != want {
		t.Errorf("unexpected credentials: %+v", got)
	}
}

func TestResolve_ExchangeRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewProvider(ambient, "arn:aws:iam::123456789012:role/denied", "us-east-1",
		WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))

	_, err := p.Resolve(context.Background())
	if !errors.Is(err, ErrAuthResolution) {
		t.Errorf("expected ErrAuthResolution, got %v", err)
	}
}

func TestResolve_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<AssumeRoleResponse><AssumeRoleResult><Credentials></Credentials></AssumeRoleResult></AssumeRoleResponse>`))
	}))
	defer srv.Close()

	p := NewProvider(ambient, "arn:aws:iam::123456789012:role/empty", "us-east-1",
		WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))

	_, err := p.Resolve(context.Background())
	if !errors.Is(err, ErrAuthResolution) {
		t.Errorf("expected ErrAuthResolution for empty credentials, got %v", err)
	}
}
