package chatsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"conversations": []Conversation{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok123")
	if _, err := client.Conversations(context.Background()); err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestClientDecodesConversationEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/conversations/c1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"conversation": map[string]any{
				"id":           "c1",
				"patient_id":   "p1",
				"patient_name": "Thandi M",
				"status":       "active",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	conversation, err := client.Conversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if conversation.ID != "c1" || conversation.PatientName != "Thandi M" || conversation.Status != "active" {
		t.Fatalf("unexpected decode: %+v", conversation)
	}
}

func TestClientSendMessagePayload(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"id": "m1", "conversation_id": "c1", "content": "hello"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	fileURL := "https://files.example/x.png"
	message, err := client.SendMessage(context.Background(), "c1", "hello", "image", &fileURL, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if message.ID != "m1" {
		t.Fatalf("unexpected message: %+v", message)
	}
	if gotBody["content"] != "hello" || gotBody["message_type"] != "image" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
	if gotBody["file_url"] != fileURL {
		t.Fatalf("expected file_url in payload, got %v", gotBody)
	}
	if _, ok := gotBody["file_name"]; ok {
		t.Fatalf("nil file_name must be omitted, got %v", gotBody)
	}
}

func TestClientSurfacesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "conversation already assigned"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	err := client.ClaimConversation(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "already assigned") {
		t.Fatalf("error should carry status and body, got %v", err)
	}
}

func TestClientEscapesConversationID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	if err := client.MarkRead(context.Background(), "a/b"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if gotPath != "/api/v1/chat/conversations/a%2Fb/read" {
		t.Fatalf("expected escaped id in path, got %q", gotPath)
	}
}
