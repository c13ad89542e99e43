package utils

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		opts CanonicalizeOptions
		want string
	}{
		{
			in:   "HTTP://Example.COM:80/foo/../bar?b=2&a=1#frag",
			want: "http://example.com/bar?a=1&b=2",
		},
		{
			in:   "https://example.com:443/index.html#section",
			want: "https://example.com/index.html",
		},
		{
			in:   "example.com/page?utm_source=x&utm_medium=y&z=1",
			opts: CanonicalizeOptions{DefaultScheme: "https", DropTrackingParams: true},
			want: "https://example.com/page?z=1",
		},
		{
			in: "https://例え.テスト/a",
			// punycode-encoded host
			want: "https://xn--r8jz45g.xn--zckzah/a",
		},
		{
			in:   "https://example.com/foo/",
			want: "https://example.com/foo/",
		},
		{
			in:   "https://user:pw@example.com:8443",
			want: "https://example.com:8443",
		},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.in, tt.opts)
		if err != nil {
			t.Fatalf("canonicalize(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	if _, err := Canonicalize("   ", CanonicalizeOptions{}); !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := Canonicalize("example.com/a", CanonicalizeOptions{}); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
}

func TestNormalizeTarget(t *testing.T) {
	got, err := NormalizeTarget("Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com" {
		t.Fatalf("got %q", got)
	}

	if _, err := NormalizeTarget("ftp://example.com/file"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestNormalizeTarget_DropsTrackingParams(t *testing.T) {
	got, err := NormalizeTarget("example.com/landing?utm_campaign=spring&gclid=abc&page=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/landing?page=2" {
		t.Fatalf("got %q", got)
	}
}

func TestOrigin(t *testing.T) {
	tests := map[string]string{
		"https://Dash.Example.com":          "https://dash.example.com",
		"https://dash.example.com:443/app/": "https://dash.example.com",
		"http://localhost:3000":             "http://localhost:3000",
		"https://user@example.com:8443":     "https://example.com:8443",
	}
	for in, want := range tests {
		got, err := Origin(in)
		if err != nil {
			t.Fatalf("Origin(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("Origin(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := Origin("dash.example.com"); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
}
