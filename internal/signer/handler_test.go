package signer_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oneauth/internal/config"
	"oneauth/internal/intent"
	"oneauth/internal/signer"
)

const testSeed = "4f8e2a1b4f8e2a1b4f8e2a1b4f8e2a1b4f8e2a1b4f8e2a1b4f8e2a1b4f8e2a1b"

func newTestServer(t *testing.T, cfg config.SignerConfig) (*httptest.Server, *signer.Signer) {
	t.Helper()
	s, err := signer.New(testSeed, "dev-1")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	srv := signer.NewServer(cfg, s, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, s
}

func validBody() map[string]any {
	return map[string]any{
		"username":    "alice",
		"targetChain": 8453,
		"calls": []map[string]string{
			{"to": "0xAbC0000000000000000000000000000000000001", "value": "100"},
		},
	}
}

func postSignIntent(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/api/sign-intent", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSignIntentReturnsVerifiableIntent(t *testing.T) {
	ts, s := newTestServer(t, config.SignerConfig{})

	resp := postSignIntent(t, ts.URL, validBody(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var signed intent.Signed
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		t.Fatalf("decode signed intent: %v", err)
	}
	if signed.DeveloperID != "dev-1" || signed.Nonce == "" {
		t.Fatalf("unexpected signed intent: %+v", signed)
	}
	if signed.Calls[0].To != strings.ToLower("0xAbC0000000000000000000000000000000000001") {
		t.Fatalf("call address must be normalized, got %q", signed.Calls[0].To)
	}
	if !intent.Verify(s.Public(), &signed) {
		t.Fatalf("signature must verify")
	}
}

func TestSignIntentValidation(t *testing.T) {
	ts, _ := newTestServer(t, config.SignerConfig{})

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing identity", func(b map[string]any) { delete(b, "username") }},
		{"bad account address", func(b map[string]any) { b["accountAddress"] = "0x123" }},
		{"zero chain", func(b map[string]any) { b["targetChain"] = 0 }},
		{"no calls", func(b map[string]any) { b["calls"] = []map[string]string{} }},
		{"bad call address", func(b map[string]any) {
			b["calls"] = []map[string]string{{"to": "not-an-address"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBody()
			tc.mutate(body)
			resp := postSignIntent(t, ts.URL, body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestSignIntentRejectsMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t, config.SignerConfig{})

	resp, err := http.Post(ts.URL+"/api/sign-intent", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSignIntentWithoutKey(t *testing.T) {
	srv := signer.NewServer(config.SignerConfig{}, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postSignIntent(t, ts.URL, validBody(), nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a key, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, config.SignerConfig{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	degraded := signer.NewServer(config.SignerConfig{}, nil, nil)
	dts := httptest.NewServer(degraded.Router())
	defer dts.Close()
	resp2, err := http.Get(dts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a key, got %d", resp2.StatusCode)
	}
}

func TestHMACAuthentication(t *testing.T) {
	cfg := config.SignerConfig{HMACSecret: "s3cret", ClockSkew: 5 * time.Minute}
	ts, _ := newTestServer(t, cfg)

	resp := postSignIntent(t, ts.URL, validBody(), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", resp.StatusCode)
	}

	raw, _ := json.Marshal(validBody())
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	headers := map[string]string{
		"X-Signer-Timestamp": timestamp,
		"X-Signer-Signature": signer.ComputeSignature("s3cret", timestamp, raw),
	}
	resp = postSignIntent(t, ts.URL, validBody(), headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with a valid signature, got %d", resp.StatusCode)
	}

	headers["X-Signer-Signature"] = signer.ComputeSignature("wrong", timestamp, raw)
	resp = postSignIntent(t, ts.URL, validBody(), headers)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong secret, got %d", resp.StatusCode)
	}
}

func TestHMACStaleTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := &signer.Verifier{
		Secret:  "s3cret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixed },
	}
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{}`)
	stale := fmt.Sprintf("%d", fixed.Add(-2*time.Minute).Unix())
	req := httptest.NewRequest(http.MethodPost, "/api/sign-intent", bytes.NewReader(body))
	req.Header.Set("X-Signer-Timestamp", stale)
	req.Header.Set("X-Signer-Signature", signer.ComputeSignature("s3cret", stale, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a stale timestamp, got %d", rec.Code)
	}

	fresh := fmt.Sprintf("%d", fixed.Unix())
	req = httptest.NewRequest(http.MethodPost, "/api/sign-intent", bytes.NewReader(body))
	req.Header.Set("X-Signer-Timestamp", fresh)
	req.Header.Set("X-Signer-Signature", signer.ComputeSignature("s3cret", fresh, body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a fresh timestamp, got %d", rec.Code)
	}
}

func TestNewSignerKeyParsing(t *testing.T) {
	if _, err := signer.New("", "dev-1"); err == nil {
		t.Fatalf("empty key must be rejected")
	}
	if _, err := signer.New(testSeed, ""); err == nil {
		t.Fatalf("empty developer id must be rejected")
	}
	if _, err := signer.New("abcd", "dev-1"); err == nil {
		t.Fatalf("short key must be rejected")
	}
	if _, err := signer.New("zz", "dev-1"); err == nil {
		t.Fatalf("non-hex key must be rejected")
	}
	s, err := signer.New(testSeed, "dev-1")
	if err != nil {
		t.Fatalf("seed key: %v", err)
	}
	if len(s.Public()) == 0 {
		t.Fatalf("expected public key")
	}
}
