package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func chatServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func chatEnvelope(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestLocalProviderCanonicalize(t *testing.T) {
	content := `{"base_name":"Leite Integral","brand":"Italac","package_type":null,"quantity_value":1,"quantity_unit":"l","is_bulk":false,"category":"dairy","confidence":0.95}`
	srv := chatServer(t, http.StatusOK, chatEnvelope(content))
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "test-model", 5*time.Second)
	result, err := p.Canonicalize(context.Background(), "LEITE INTEG ITALAC 1L")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decomposition.BaseName != "Leite Integral" {
		t.Errorf("base name = %q", result.Decomposition.BaseName)
	}
	if result.Decomposition.QuantityBase != 1000 || result.Decomposition.QuantityBaseUnit != "ml" {
		t.Errorf("normalized quantity = %v %s", result.Decomposition.QuantityBase, result.Decomposition.QuantityBaseUnit)
	}
}

func TestLocalProviderServerErrorUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusBadGateway, "upstream down")
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "", 5*time.Second)
	_, err := p.Canonicalize(context.Background(), "LEITE INTEG ITALAC 1L")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for 5xx, got %v", err)
	}
}

func TestLocalProviderGarbageEnvelopeUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "<html>not json</html>")
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "", 5*time.Second)
	_, err := p.Canonicalize(context.Background(), "LEITE INTEG ITALAC 1L")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for undecodable body, got %v", err)
	}
}

func TestLocalProviderEmptyChoicesUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices":[]}`)
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "", 5*time.Second)
	_, err := p.Canonicalize(context.Background(), "LEITE INTEG ITALAC 1L")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for empty choices, got %v", err)
	}
}

func TestLocalProviderConnectionRefusedUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "")
	srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "", time.Second)
	_, err := p.Canonicalize(context.Background(), "LEITE INTEG ITALAC 1L")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for refused connection, got %v", err)
	}
}
