package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rlopes/wview/internal/bus"
	"github.com/rlopes/wview/internal/ingest"
	"github.com/rlopes/wview/internal/metrics"
	"github.com/rlopes/wview/internal/realtime"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/zap"
)

func testServer(t *testing.T) (*echo.Echo, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := zap.NewNop()

	pipeline := ingest.New(db, b, m, logger)
	hub := realtime.NewHub(b, m, logger)
	hub.Start(context.Background())
	t.Cleanup(hub.Stop)

	e := echo.New()
	Register(e,
		NewConversationHandler(db, pipeline, logger),
		NewWebhookHandler(pipeline, logger),
		NewWSHandler(hub, "", logger),
		reg,
	)
	return e, db
}

func request(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func seedIncoming(t *testing.T, db *store.DB, msgID, waID, name, body string, ts int64) {
	t.Helper()
	inserted, _, err := db.InsertMessage(&store.Message{
		MsgID:     msgID,
		WaID:      waID,
		UserName:  name,
		Body:      body,
		Direction: store.DirectionIncoming,
		Status:    store.StatusSent,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatalf("seed message %s not inserted", msgID)
	}
}

func webhookMessage(msgID, waID, name, body, epoch string) string {
	return `{
	  "metaData": {
	    "entry": [{
	      "changes": [{
	        "value": {
	          "metadata": {"phone_number_id": "pn1", "display_phone_number": "+55 11 98888-0000"},
	          "contacts": [{"wa_id": "` + waID + `", "profile": {"name": "` + name + `"}}],
	          "messages": [{
	            "from": "` + waID + `",
	            "id": "` + msgID + `",
	            "timestamp": "` + epoch + `",
	            "type": "text",
	            "text": {"body": "` + body + `"}
	          }]
	        }
	      }]
	    }]
	  }
	}`
}

func TestHealth(t *testing.T) {
	e, _ := testServer(t)

	rec := request(t, e, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "OK" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestWebhookSinglePayload(t *testing.T) {
	e, db := testServer(t)

	payload := webhookMessage("wamid.W1", "5511999990000", "Alice", "hello", "1700000000")
	rec := request(t, e, http.MethodPost, "/api/webhook", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result ingest.BatchResult
	decode(t, rec, &result)
	if result.Processed != 1 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}

	msg, err := db.GetMessage("wamid.W1")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.Body != "hello" {
		t.Errorf("message not stored: %+v", msg)
	}
}

func TestWebhookBatch(t *testing.T) {
	e, _ := testServer(t)

	fresh := webhookMessage("wamid.B1", "5511999990000", "Alice", "hi", "1700000000")
	dup := webhookMessage("wamid.B1", "5511999990000", "Alice", "hi", "1700000000")
	batch := "[" + fresh + "," + dup + `,{"metaData":{"entry":[]}}]`

	rec := request(t, e, http.MethodPost, "/api/webhook", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result ingest.BatchResult
	decode(t, rec, &result)
	if result.Processed != 1 || result.Duplicate != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestWebhookMalformedBodyStillAccepted(t *testing.T) {
	e, _ := testServer(t)

	rec := request(t, e, http.MethodPost, "/api/webhook", "not json at all")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result ingest.BatchResult
	decode(t, rec, &result)
	if result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestListConversations(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "first", 1000)
	seedIncoming(t, db, "m2", "111", "Alice", "latest", 2000)
	seedIncoming(t, db, "m3", "222", "Bob", "yo", 1500)

	rec := request(t, e, http.MethodGet, "/api/conversations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []conversationView
	decode(t, rec, &views)
	if len(views) != 2 {
		t.Fatalf("got %d conversations", len(views))
	}
	first := views[0]
	if first.WaID != "111" || first.LastMessage != "latest" || first.MessageCount != 2 || first.UnreadCount != 2 {
		t.Errorf("first conversation = %+v", first)
	}
}

func TestListMessages(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "one", 1000)
	seedIncoming(t, db, "m2", "111", "Alice", "two", 2000)
	seedIncoming(t, db, "m3", "222", "Bob", "other", 1500)

	rec := request(t, e, http.MethodGet, "/api/conversations/111/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []messageView
	decode(t, rec, &views)
	if len(views) != 2 {
		t.Fatalf("got %d messages", len(views))
	}
	if views[0].MessageBody != "one" || views[1].MessageBody != "two" {
		t.Errorf("order = %q, %q", views[0].MessageBody, views[1].MessageBody)
	}
}

func TestListMessagesUnknownConversation(t *testing.T) {
	e, _ := testServer(t)

	rec := request(t, e, http.MethodGet, "/api/conversations/nope/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []messageView
	decode(t, rec, &views)
	if len(views) != 0 {
		t.Errorf("got %d messages, want empty list", len(views))
	}
}

func TestConversationInfo(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "hello", 1000)

	rec := request(t, e, http.MethodGet, "/api/conversations/111/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info map[string]string
	decode(t, rec, &info)
	if info["waId"] != "111" || info["userName"] != "Alice" {
		t.Errorf("info = %v", info)
	}
}

func TestConversationInfoNotFound(t *testing.T) {
	e, _ := testServer(t)

	rec := request(t, e, http.MethodGet, "/api/conversations/nope/info", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "hello", 1000)

	rec := request(t, e, http.MethodPost, "/api/conversations/111/messages", `{"messageBody":"  reply  "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool        `json:"success"`
		Message messageView `json:"message"`
	}
	decode(t, rec, &body)
	if !body.Success {
		t.Error("success = false")
	}
	if body.Message.MessageBody != "reply" {
		t.Errorf("body = %q, want trimmed reply", body.Message.MessageBody)
	}
	if body.Message.Direction != store.DirectionOutgoing {
		t.Errorf("direction = %q", body.Message.Direction)
	}

	msgs, err := db.ListMessages("111")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d stored messages", len(msgs))
	}
}

func TestSendMessageEmptyBody(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "hello", 1000)

	rec := request(t, e, http.MethodPost, "/api/conversations/111/messages", `{"messageBody":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	e, _ := testServer(t)

	rec := request(t, e, http.MethodPost, "/api/conversations/nope/messages", `{"messageBody":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	e, db := testServer(t)
	seedIncoming(t, db, "m1", "111", "Alice", "one", 1000)
	seedIncoming(t, db, "m2", "111", "Alice", "two", 2000)

	rec := request(t, e, http.MethodPut, "/api/conversations/111/mark-read", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Success bool  `json:"success"`
		Updated int64 `json:"updated"`
	}
	decode(t, rec, &body)
	if !body.Success || body.Updated != 2 {
		t.Errorf("response = %+v", body)
	}

	convs, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].UnreadCount != 0 {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e, _ := testServer(t)

	request(t, e, http.MethodPost, "/api/webhook",
		webhookMessage("wamid.M1", "111", "Alice", "hi", "1700000000"))

	rec := request(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wview_payloads_ingested_total 1") {
		t.Errorf("metrics output missing ingestion counter:\n%s", rec.Body.String())
	}
}

func TestWebSocketScopedDelivery(t *testing.T) {
	e, _ := testServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "join", "waId": "111"}); err != nil {
		t.Fatal(err)
	}
	// Give the server's read pump a moment to apply the subscription.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/webhook", "application/json",
		strings.NewReader(webhookMessage("wamid.WS1", "111", "Alice", "live", "1700000000")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	sawNewMessage := false
	sawUpdated := false
	for i := 0; i < 2; i++ {
		var frame struct {
			Event   string `json:"event"`
			WaID    string `json:"waId"`
			Message struct {
				MessageBody string `json:"messageBody"`
			} `json:"message"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		switch frame.Event {
		case "new-message":
			sawNewMessage = true
			if frame.WaID != "111" || frame.Message.MessageBody != "live" {
				t.Errorf("new-message frame = %+v", frame)
			}
		case "conversations-updated":
			sawUpdated = true
		default:
			t.Errorf("unexpected event %q", frame.Event)
		}
	}
	if !sawNewMessage || !sawUpdated {
		t.Errorf("sawNewMessage=%v sawUpdated=%v", sawNewMessage, sawUpdated)
	}
}
