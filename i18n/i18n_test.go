package i18n

import (
	"net/http/httptest"
	"testing"
)

func TestTranslate(t *testing.T) {
	tr, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := tr.T("en", "LoggedOut"); got != "Logged out" {
		t.Errorf("Expected English message, got %q", got)
	}
	if got := tr.T("ko", "LoggedOut"); got == "Logged out" || got == "LoggedOut" {
		t.Errorf("Expected Korean message, got %q", got)
	}
	if got := tr.T("fr", "LoggedOut"); got != "Logged out" {
		t.Errorf("Expected English fallback, got %q", got)
	}
	if got := tr.T("en", "NoSuchKey"); got != "NoSuchKey" {
		t.Errorf("Expected key echo for missing message, got %q", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	tr, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for key := range tr.translations["en"] {
		if _, ok := tr.translations["ko"][key]; !ok {
			t.Errorf("ko locale missing %s", key)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tr, _ := Load()

	cases := map[string]string{
		"":                         "en",
		"ko-KR,ko;q=0.9,en;q=0.8":  "ko",
		"fr-CH, fr;q=0.9, ko;q=0.5": "ko",
		"de":                       "en",
		"EN-us":                    "en",
	}
	for header, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Accept-Language", header)
		}
		if got := tr.DetectLanguage(r); got != want {
			t.Errorf("Accept-Language %q: expected %s, got %s", header, want, got)
		}
	}
}
