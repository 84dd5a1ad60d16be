package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/eduzayn/messaging-gateway/internal/messaging"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

type stubDispatcher struct {
	result      messaging.SendResult
	err         error
	lastPayload messaging.OutboundPayload
	lastPhone   string
}

func (s *stubDispatcher) Send(ctx context.Context, conversationID uuid.UUID, contactPhone string, payload messaging.OutboundPayload) (messaging.SendResult, error) {
	s.lastPayload = payload
	s.lastPhone = contactPhone
	return s.result, s.err
}

func postSend(handler *SendMessageHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	return rec
}

func TestSendTextMessage(t *testing.T) {
	msgID := uuid.New()
	dispatcher := &stubDispatcher{result: messaging.SendResult{
		MessageID:         msgID,
		ExternalMessageID: "wamid.OUT9",
		Status:            messaging.StatusSent,
	}}
	handler := NewSendMessageHandler(dispatcher, logging.Default())

	convID := uuid.New()
	rec := postSend(handler, `{"conversation_id":"`+convID.String()+`","phone":"+5511999990000","kind":"text","body":"Sua matrícula foi confirmada"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "SENT" || resp.ExternalMessageID != "wamid.OUT9" || resp.MessageID != msgID.String() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if dispatcher.lastPayload.Kind != messaging.OutboundText {
		t.Fatalf("expected text payload, got %s", dispatcher.lastPayload.Kind)
	}
}

func TestSendTemplateMessage(t *testing.T) {
	dispatcher := &stubDispatcher{result: messaging.SendResult{
		MessageID: uuid.New(),
		Status:    messaging.StatusSent,
	}}
	handler := NewSendMessageHandler(dispatcher, logging.Default())

	convID := uuid.New()
	rec := postSend(handler, `{"conversation_id":"`+convID.String()+`","phone":"+5511999990000","kind":"template","template_name":"boas_vindas","template_params":["Ana"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if dispatcher.lastPayload.TemplateName != "boas_vindas" || len(dispatcher.lastPayload.TemplateParams) != 1 {
		t.Fatalf("unexpected payload: %+v", dispatcher.lastPayload)
	}
}

func TestSendProviderFailureReturnsTypedResult(t *testing.T) {
	msgID := uuid.New()
	dispatcher := &stubDispatcher{
		result: messaging.SendResult{
			MessageID:   msgID,
			Status:      messaging.StatusFailed,
			ErrorDetail: `{"error":{"code":131026}}`,
		},
		err: errors.New("messaging: provider send: whatsapp: api status 400"),
	}
	handler := NewSendMessageHandler(dispatcher, logging.Default())

	convID := uuid.New()
	rec := postSend(handler, `{"conversation_id":"`+convID.String()+`","phone":"+5511999990000","kind":"text","body":"oi"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "FAILED" || resp.ErrorDetail == "" {
		t.Fatalf("expected FAILED result with detail, got %+v", resp)
	}
}

func TestSendRejectsInvalidRequests(t *testing.T) {
	dispatcher := &stubDispatcher{}
	handler := NewSendMessageHandler(dispatcher, logging.Default())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad conversation id", `{"conversation_id":"nope","phone":"+55","kind":"text","body":"x"}`},
		{"text without body", `{"conversation_id":"` + uuid.NewString() + `","phone":"+55","kind":"text"}`},
		{"template without name", `{"conversation_id":"` + uuid.NewString() + `","phone":"+55","kind":"template"}`},
		{"media without url", `{"conversation_id":"` + uuid.NewString() + `","phone":"+55","kind":"media"}`},
		{"unknown kind", `{"conversation_id":"` + uuid.NewString() + `","phone":"+55","kind":"sticker"}`},
	}
	for _, tc := range cases {
		if rec := postSend(handler, tc.body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}
