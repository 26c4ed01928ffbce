package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKrakenHeaders(t *testing.T) {
	// Example from Kraken's REST authentication guide.
	c := Credentials{
		Key:    "api-key",
		Secret: "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==",
	}
	h, err := c.KrakenHeaders("/0/private/AddOrder", "1616492376594",
		"nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25")
	if err != nil {
		t.Fatal(err)
	}
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if h["API-Sign"] != want {
		t.Fatalf("API-Sign=%s", h["API-Sign"])
	}
	if h["API-Key"] != "api-key" {
		t.Fatalf("API-Key=%s", h["API-Key"])
	}
}

func TestCoinbaseHeadersAt(t *testing.T) {
	c := Credentials{Key: "k", Secret: "Y29pbmJhc2Utc2VjcmV0", Passphrase: "pp"}
	h, err := c.CoinbaseHeadersAt("POST", "/orders", `{"side":"buy"}`, 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"CB-ACCESS-KEY":        "k",
		"CB-ACCESS-SIGN":       "brOa3d31zPMJaN8tIZbQHUMH+8NjlHqtGk2WRjAt0uk=",
		"CB-ACCESS-TIMESTAMP":  "1700000000",
		"CB-ACCESS-PASSPHRASE": "pp",
	}
	for k, v := range want {
		if h[k] != v {
			t.Errorf("%s=%q want %q", k, h[k], v)
		}
	}
}

func TestBadSecret(t *testing.T) {
	c := Credentials{Key: "k", Secret: "not base64!"}
	if _, err := c.KrakenHeaders("/0/private/Balance", "1", "nonce=1"); err == nil {
		t.Fatal("expected error for non-base64 secret")
	}
}

func TestCredentialsStringRedacts(t *testing.T) {
	s := Credentials{Key: "abcdefgh", Secret: "supersecret"}.String()
	if strings.Contains(s, "supersecret") || strings.Contains(s, "abcdefgh") {
		t.Fatalf("leaked: %s", s)
	}
}

func TestSealOpenSecret(t *testing.T) {
	sealed, err := SealSecret("c2VjcmV0", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := OpenSecret(sealed, "hunter2")
	if err != nil || got != "c2VjcmV0" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if _, err := OpenSecret(sealed, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestLoadSecret(t *testing.T) {
	sealed, err := SealSecret("from-file", "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "kraken.json")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		src  SecretSource
		want string
	}{
		{"raw wins", SecretSource{Raw: "raw", File: path, Password: "pw"}, "raw"},
		{"file", SecretSource{File: path, Password: "pw"}, "from-file"},
		{"none", SecretSource{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSecret(tt.src)
			if err != nil || got != tt.want {
				t.Fatalf("got=%q err=%v", got, err)
			}
		})
	}
}
