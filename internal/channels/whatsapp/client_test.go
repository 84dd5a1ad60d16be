package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduzayn/messaging-gateway/internal/messaging"
)

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.C3"}]}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIVersion: "v23.0"})
	id, err := client.Send(context.Background(), "token-abc", "1099", "+5511888888888", messaging.OutboundPayload{
		Kind: messaging.OutboundText,
		Body: "Olá!",
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.C3", id)
	assert.Equal(t, "/v23.0/1099/messages", gotPath)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, "text", gotBody["type"])
	assert.Equal(t, "5511888888888", gotBody["to"])
	text, ok := gotBody["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Olá!", text["body"])
}

func TestSendTemplateBody(t *testing.T) {
	msg, err := buildSendMessage("+5511888888888", messaging.OutboundPayload{
		Kind:             messaging.OutboundTemplate,
		TemplateName:     "boleto_vencido",
		TemplateLanguage: "pt_BR",
		TemplateParams:   []string{"Maria", "R$ 150,00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "template", msg.Type)
	require.NotNil(t, msg.Template)
	assert.Equal(t, "boleto_vencido", msg.Template.Name)
	assert.Equal(t, "pt_BR", msg.Template.Language.Code)
	require.Len(t, msg.Template.Components, 1)
	assert.Equal(t, "body", msg.Template.Components[0].Type)
	require.Len(t, msg.Template.Components[0].Parameters, 2)
	assert.Equal(t, "Maria", msg.Template.Components[0].Parameters[0].Text)
}

func TestSendMediaKinds(t *testing.T) {
	tests := []struct {
		url   string
		field string
	}{
		{"https://cdn.example.com/contrato.pdf", "document"},
		{"https://cdn.example.com/foto.jpeg?sig=1", "image"},
		{"https://cdn.example.com/audio.ogg", "audio"},
		{"https://cdn.example.com/aula.mp4", "video"},
	}
	for _, tt := range tests {
		msg, err := buildSendMessage("+5511888888888", messaging.OutboundPayload{
			Kind:     messaging.OutboundMedia,
			MediaURL: tt.url,
			Caption:  "anexo",
		})
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.field, msg.Type, tt.url)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})
	_, err := client.Send(context.Background(), "token-abc", "1099", "+5511888888888", messaging.OutboundPayload{
		Kind: messaging.OutboundText,
		Body: "hi",
	})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, 190, apiErr.Code)
	assert.Contains(t, apiErr.Message, "Invalid OAuth")
}

func TestSendTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := client.Send(context.Background(), "token-abc", "1099", "+5511888888888", messaging.OutboundPayload{
		Kind: messaging.OutboundText,
		Body: "hi",
	})
	require.Error(t, err)
}

func TestSendValidatesInput(t *testing.T) {
	client := New(Config{})
	_, err := client.Send(context.Background(), "", "", "+5511888888888", messaging.OutboundPayload{Kind: messaging.OutboundText, Body: "x"})
	assert.Error(t, err)

	_, err = client.Send(context.Background(), "token-abc", "1099", "", messaging.OutboundPayload{Kind: messaging.OutboundText, Body: "x"})
	assert.Error(t, err)

	_, err = buildSendMessage("+55", messaging.OutboundPayload{Kind: messaging.OutboundText})
	assert.Error(t, err)

	_, err = buildSendMessage("+55", messaging.OutboundPayload{Kind: "sticker"})
	assert.Error(t, err)
}
