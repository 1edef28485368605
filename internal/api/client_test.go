package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livecast/internal/domain"
)

func TestGetToken_SendsDerivedIdentity(t *testing.T) {
	var gotRoom, gotParticipant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getToken" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotRoom = r.PostFormValue("roomName")
		gotParticipant = r.PostFormValue("participantName")
		w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	identity, token, err := c.GetToken(context.Background(), "4821", domain.RoleBroadcaster)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q", token)
	}
	if identity != "streamer-4821" || gotParticipant != "streamer-4821" {
		t.Errorf("identity = %q, sent = %q, want streamer-4821", identity, gotParticipant)
	}
	if gotRoom != "4821" {
		t.Errorf("roomName sent = %q", gotRoom)
	}
}

func TestInitializeConnection_StopsAfterTokenFailure(t *testing.T) {
	urlCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getToken":
			http.Error(w, `{"message":"room is full"}`, http.StatusForbidden)
		case "/getUrl":
			urlCalled = true
			w.Write([]byte(`{"url":"ws://x"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.InitializeConnection(context.Background(), "4821", domain.RoleViewer)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := domain.KindOf(err); !ok || kind != domain.FailureCredential {
		t.Errorf("failure kind = %v, ok=%v", kind, ok)
	}
	if !strings.Contains(err.Error(), "room is full") {
		t.Errorf("server message not surfaced: %v", err)
	}
	if urlCalled {
		t.Error("getUrl must not be called after a token failure")
	}
}

func TestInitializeConnection_URLFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getToken":
			w.Write([]byte(`{"token":"tok-1"}`))
		case "/getUrl":
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.InitializeConnection(context.Background(), "4821", domain.RoleBroadcaster)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rejected") {
		t.Errorf("want rejection message, got: %v", err)
	}
}

func TestDo_ErrorClassification(t *testing.T) {
	// Unreachable server: connection refused maps to "cannot reach server".
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.GetURL(context.Background())
	if err == nil || !strings.Contains(err.Error(), "cannot reach server") {
		t.Errorf("unreachable: %v", err)
	}

	// Garbage body maps to "malformed server response".
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()
	c = NewClient(srv.URL, time.Second)
	_, err = c.GetURL(context.Background())
	if err == nil || !strings.Contains(err.Error(), "malformed server response") {
		t.Errorf("malformed: %v", err)
	}
}

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createRoom" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"sid":"abc123","name":"4821"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	sid, name, err := c.CreateRoom(context.Background(), "4821")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if sid != "abc123" || name != "4821" {
		t.Errorf("sid=%q name=%q", sid, name)
	}
}

func TestGetRoomList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":[{"sid":"s1","name":"4821","numParticipants":3}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	rooms, err := c.GetRoomList(context.Background())
	if err != nil {
		t.Fatalf("GetRoomList: %v", err)
	}
	if len(rooms) != 1 || rooms[0].SID != "s1" || rooms[0].NumParticipants != 3 {
		t.Errorf("rooms = %+v", rooms)
	}
}
