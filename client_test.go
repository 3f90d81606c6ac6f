package lunalove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// API Stub
// ============================================================================

// apiStub is a configurable fake of the request/response API.
type apiStub struct {
	mu         sync.Mutex
	history    []WireMessage
	nowMilli   int64
	nextID     int
	sendStatus int // nonzero forces message sends to fail with that HTTP status
	giftStatus int // same for gift sends
	rateLimits int // remaining history fetches to answer with 429
	fetches    chan struct{}
	balance    int
}

func newAPIStub() *apiStub {
	return &apiStub{
		nowMilli: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		balance:  100,
		fetches:  make(chan struct{}, 64),
	}
}

func (a *apiStub) addHistory(m WireMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
}

func (a *apiStub) createMessage(body string) WireMessage {
	a.nextID++
	a.nowMilli += 50
	m := WireMessage{
		ID:       fmt.Sprintf("srv-%d", a.nextID),
		SenderID: "me",
		Body:     body,
		SentAt:   a.nowMilli,
	}
	a.history = append(a.history, m)
	return m
}

func writeResult(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	writeResult(w, http.StatusOK, Result{OK: true, Data: raw})
}

func writeFail(w http.ResponseWriter, status int, code, msg string) {
	writeResult(w, status, Result{Error: &APIError{Code: code, Message: msg}})
}

func (a *apiStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		switch {
		case r.URL.Path == "/api/wallet":
			writeOK(w, WalletInfo{Balance: a.balance})

		case strings.HasSuffix(r.URL.Path, "/messages") && r.Method == http.MethodGet:
			select {
			case a.fetches <- struct{}{}:
			default:
			}
			if a.rateLimits > 0 {
				a.rateLimits--
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeOK(w, a.history)

		case strings.HasSuffix(r.URL.Path, "/messages") && r.Method == http.MethodPost:
			if a.sendStatus != 0 {
				writeFail(w, a.sendStatus, "SEND_FAILED", "message rejected")
				return
			}
			var req struct {
				Body string `json:"body"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			writeOK(w, a.createMessage(req.Body))

		case strings.HasSuffix(r.URL.Path, "/gifts") && r.Method == http.MethodPost:
			if a.giftStatus != 0 {
				writeFail(w, a.giftStatus, "GIFT_FAILED", "gift rejected")
				return
			}
			var req struct {
				GiftID   string `json:"gift_id"`
				Quantity int    `json:"quantity"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			a.balance -= 30
			msg := a.createMessage("gift:" + req.GiftID)
			writeOK(w, GiftReceipt{Message: msg, Balance: a.balance})

		default:
			writeFail(w, http.StatusNotFound, "NOT_FOUND", "no such route")
		}
	})
}

// ============================================================================
// Client Tests
// ============================================================================

func TestClientHistory(t *testing.T) {
	stub := newAPIStub()
	stub.addHistory(WireMessage{ID: "m1", SenderID: "peer", Body: "hi", SentAt: stub.nowMilli})
	stub.addHistory(WireMessage{ID: "m2", SenderID: "me", Body: "hello", SentAt: stub.nowMilli + 100})
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient("tok", WithBaseURL(server.URL))
	got, err := client.History(context.Background(), "c1", 50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("history = %+v", got)
	}
}

func TestClientSendChatMessage(t *testing.T) {
	t.Run("success returns the created record", func(t *testing.T) {
		stub := newAPIStub()
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		client := NewClient("tok", WithBaseURL(server.URL))
		msg, err := client.SendChatMessage(context.Background(), "c1", "hello")
		if err != nil {
			t.Fatalf("SendChatMessage: %v", err)
		}
		if msg.ID == "" || msg.Body != "hello" {
			t.Fatalf("message = %+v", msg)
		}
	})

	t.Run("api error surfaces as APIError", func(t *testing.T) {
		stub := newAPIStub()
		stub.sendStatus = http.StatusBadRequest
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		client := NewClient("tok", WithBaseURL(server.URL))
		_, err := client.SendChatMessage(context.Background(), "c1", "hello")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want *APIError", err)
		}
		if apiErr.Code != "SEND_FAILED" {
			t.Fatalf("code = %s", apiErr.Code)
		}
	})
}

func TestClientRateLimited(t *testing.T) {
	t.Run("http 429", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient("tok", WithBaseURL(server.URL))
		_, err := client.History(context.Background(), "c1", 0)
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("err = %v, want ErrRateLimited", err)
		}
	})

	t.Run("structured code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFail(w, http.StatusOK, "RATE_LIMITED", "slow down")
		}))
		defer server.Close()

		client := NewClient("tok", WithBaseURL(server.URL))
		_, err := client.History(context.Background(), "c1", 0)
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("err = %v, want ErrRateLimited", err)
		}
	})
}

func TestClientWallet(t *testing.T) {
	stub := newAPIStub()
	stub.balance = 250
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient("tok", WithBaseURL(server.URL))
	info, err := client.Wallet(context.Background())
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if info.Balance != 250 {
		t.Fatalf("balance = %d, want 250", info.Balance)
	}
}

func TestClientAuth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeOK(w, []WireMessage{})
	}))
	defer server.Close()

	client := NewClient("tok-42", WithBaseURL(server.URL+"/"))
	if _, err := client.History(context.Background(), "c1", 0); err != nil {
		t.Fatalf("History: %v", err)
	}
	if gotAuth != "Bearer tok-42" {
		t.Fatalf("auth = %q", gotAuth)
	}
}
