package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/vbtlab/trainpipe/internal/flow"
	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

type fakeSender struct {
	Texts []string
	Lists []models.InteractiveList
}

func (f *fakeSender) SendText(ctx context.Context, to string, body string) error {
	f.Texts = append(f.Texts, body)
	return nil
}

func (f *fakeSender) SendList(ctx context.Context, to string, list models.InteractiveList) error {
	f.Lists = append(f.Lists, list)
	return nil
}

func (f *fakeSender) SendDocument(ctx context.Context, to string, mediaID, filename string) error {
	return nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, store.Store, *fakeSender) {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "api.db")))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sender := &fakeSender{}
	engine := flow.NewEngine(s, sender, nil)

	opts = append([]Option{WithVerifyToken("secret-token")}, opts...)
	srv, err := NewServer(engine, opts...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, s, sender
}

func textMessageBody(from, text string) []byte {
	return []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "34911222333", "phone_number_id": "42"},
					"contacts": [{"profile": {"name": "Ana"}, "wa_id": "` + from + `"}],
					"messages": [{
						"from": "` + from + `",
						"id": "wamid.X",
						"timestamp": "1724800000",
						"type": "text",
						"text": {"body": "` + text + `"}
					}]
				}
			}]
		}]
	}`)
}

func statusBody() []byte {
	return []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "34911222333", "phone_number_id": "42"},
					"statuses": [{
						"id": "wamid.X",
						"status": "delivered",
						"timestamp": "1724800000",
						"recipient_id": "34600111222"
					}]
				}
			}]
		}]
	}`)
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(nil, WithVerifyToken("t")); err == nil {
		t.Fatal("expected error for nil engine")
	}
	engine := flow.NewEngine(nil, nil, nil)
	if _, err := NewServer(engine); err == nil {
		t.Fatal("expected error for missing verify token")
	}
}

func TestVerifyHandshake(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("expected challenge echo, got %q", rec.Body.String())
	}
}

func TestVerifyHandshake_WrongToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestReceive_TextMessage(t *testing.T) {
	srv, s, sender := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(textMessageBody("34600111222", "hola")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp := decodeAPIResponse(t, rec); resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected success response, got %+v", resp)
	}

	u, err := s.GetUserByPhone(context.Background(), "34600111222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.State != models.StateIdle {
		t.Errorf("expected new Idle user, got %+v", u)
	}
	if len(sender.Texts) == 0 || len(sender.Lists) == 0 {
		t.Errorf("expected prompt and menu list to be sent, got %d texts %d lists", len(sender.Texts), len(sender.Lists))
	}
}

func TestReceive_StatusUpdateShortCircuits(t *testing.T) {
	srv, s, sender := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(statusBody()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeAPIResponse(t, rec); resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected success response, got %+v", resp)
	}
	u, err := s.GetUserByPhone(context.Background(), "34600111222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Error("status update must not create a user")
	}
	if len(sender.Texts) != 0 {
		t.Errorf("status update must not trigger messages, got %v", sender.Texts)
	}
}

func TestReceive_MalformedPayloadAcknowledged(t *testing.T) {
	srv, _, sender := newTestServer(t)
	h := srv.Handler()

	for _, body := range []string{
		"not json at all",
		`{"object": "whatsapp_business_account", "entry": []}`,
		`{
			"object": "whatsapp_business_account",
			"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "1", "phone_number_id": "2"},
				"contacts": [{"profile": {"name": "Ana"}, "wa_id": "34600111222"}],
				"messages": [{"from": "34600111222", "id": "wamid.X", "timestamp": "0", "type": "reaction"}]
			}}]}]
		}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected ack 200 for malformed payload, got %d", rec.Code)
		}
		if resp := decodeAPIResponse(t, rec); resp.Status != string(models.APIStatusError) {
			t.Errorf("expected error-status ack, got %+v", resp)
		}
	}
	if len(sender.Texts) != 0 || len(sender.Lists) != 0 {
		t.Error("malformed payloads must not trigger side effects")
	}
}

func TestReceive_SignatureVerification(t *testing.T) {
	secret := "app-secret"
	srv, _, _ := newTestServer(t, WithAppSecret(secret))
	h := srv.Handler()
	body := textMessageBody("34600111222", "hola")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected signed request to pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected bad signature to be refused, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected missing signature to be refused, got %d", rec.Code)
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
