package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// fakeLiveServer plays the server side of BidiGenerateContent
type fakeLiveServer struct {
	t        *testing.T
	setup    chan map[string]any
	received chan map[string]any
	script   func(conn *websocket.Conn)
	apiKey   chan string
}

func newFakeLiveServer(t *testing.T, script func(conn *websocket.Conn)) (*fakeLiveServer, *httptest.Server) {
	f := &fakeLiveServer{
		t:        t,
		setup:    make(chan map[string]any, 1),
		received: make(chan map[string]any, 16),
		script:   script,
		apiKey:   make(chan string, 1),
	}
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeLiveServer) handle(w http.ResponseWriter, r *http.Request) {
	f.apiKey <- r.URL.Query().Get("key")

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var setup map[string]any
	if err := conn.ReadJSON(&setup); err != nil {
		f.t.Errorf("Failed to read setup: %v", err)
		return
	}
	f.setup <- setup

	conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))

	go func() {
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}()

	if f.script != nil {
		f.script(conn)
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestGeminiWebSocketSetupAndMessages(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	sendScript := make(chan struct{})

	fake, server := newFakeLiveServer(t, func(conn *websocket.Conn) {
		<-sendScript
		audioFrame := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` +
			base64.StdEncoding.EncodeToString(pcm) + `"}},{"inlineData":{"mimeType":"audio/pcm","data":"!!notbase64"}}]}}}`
		conn.WriteMessage(websocket.TextMessage, []byte(audioFrame))
		conn.WriteMessage(websocket.BinaryMessage, []byte(`{"serverContent":{"interrupted":true}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"toolCall":{"functionCalls":[{"id":"call-1","name":"getLowStockAlerts","args":{"threshold":20}}]}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"toolCallCancellation":{"ids":["call-0"]}}`))
		time.Sleep(100 * time.Millisecond)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	connector := NewGeminiWebSocket(LiveConfig{APIKey: "test-key", Endpoint: wsURL(server)}, zaptest.NewLogger(t))

	zero := 0.0
	session, err := connector.Connect(context.Background(), repositories.LiveConfig{
		SystemInstruction: "You are Hardy.",
		Tools: []repositories.ToolDeclaration{{
			Name:        "getLowStockAlerts",
			Description: "List low stock",
			Parameters: []repositories.ToolParameter{
				{Name: "threshold", Type: repositories.ParamNumber, Min: &zero},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer session.Close()

	if key := <-fake.apiKey; key != "test-key" {
		t.Errorf("Expected API key in query, got %q", key)
	}

	setup := (<-fake.setup)["setup"].(map[string]any)
	if setup["model"] != "models/"+defaultLiveModel {
		t.Errorf("Expected default model, got %v", setup["model"])
	}
	voice := setup["generation_config"].(map[string]any)["speech_config"].(map[string]any)["voice_config"].(map[string]any)["prebuilt_voice_config"].(map[string]any)["voice_name"]
	if voice != defaultLiveVoice {
		t.Errorf("Expected voice %s, got %v", defaultLiveVoice, voice)
	}
	decls := setup["tools"].([]any)[0].(map[string]any)["function_declarations"].([]any)
	if len(decls) != 1 || decls[0].(map[string]any)["name"] != "getLowStockAlerts" {
		t.Errorf("Expected one tool declaration, got %v", decls)
	}

	ctx := context.Background()
	if err := session.SendAudio(ctx, pcm, 16000); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	chunk := (<-fake.received)["realtime_input"].(map[string]any)["media_chunks"].([]any)[0].(map[string]any)
	if chunk["mime_type"] != "audio/pcm;rate=16000" {
		t.Errorf("Expected PCM mime type, got %v", chunk["mime_type"])
	}
	if chunk["data"] != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("Expected base64 audio, got %v", chunk["data"])
	}

	if err := session.SendImage(ctx, []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("SendImage() error = %v", err)
	}
	image := (<-fake.received)["realtime_input"].(map[string]any)["media_chunks"].([]any)[0].(map[string]any)
	if image["mime_type"] != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %v", image["mime_type"])
	}

	err = session.SendToolResponse(ctx, []entities.ToolResult{{CallID: "call-1", Name: "getLowStockAlerts", Fields: map[string]any{"count": 2}}})
	if err != nil {
		t.Fatalf("SendToolResponse() error = %v", err)
	}
	resp := (<-fake.received)["tool_response"].(map[string]any)["function_responses"].([]any)[0].(map[string]any)
	if resp["id"] != "call-1" || resp["name"] != "getLowStockAlerts" {
		t.Errorf("Expected tool response to echo id and name, got %v", resp)
	}

	close(sendScript)

	msg, err := session.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msg.Audio) != 1 || string(msg.Audio[0]) != string(pcm) {
		t.Errorf("Expected one decoded audio fragment, got %v", msg.Audio)
	}
	if msg.AudioRate != 24000 {
		t.Errorf("Expected audio rate 24000, got %d", msg.AudioRate)
	}

	msg, err = session.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !msg.Interrupted {
		t.Error("Expected interrupted message")
	}

	msg, err = session.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "call-1" || call.Name != "getLowStockAlerts" || call.Args["threshold"] != float64(20) {
		t.Errorf("Unexpected tool call %+v", call)
	}

	msg, err = session.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msg.CancelledCalls) != 1 || msg.CancelledCalls[0] != "call-0" {
		t.Errorf("Expected cancelled call-0, got %v", msg.CancelledCalls)
	}

	if _, err := session.Receive(ctx); !errors.Is(err, domain.ErrRemoteClosed) {
		t.Errorf("Expected ErrRemoteClosed, got %v", err)
	}
}

func TestGeminiWebSocketMissingKey(t *testing.T) {
	connector := NewGeminiWebSocket(LiveConfig{}, zaptest.NewLogger(t))

	var configErr *domain.ConfigurationError
	if err := connector.Ready(); !errors.As(err, &configErr) {
		t.Errorf("Expected ConfigurationError from Ready, got %v", err)
	}
	if _, err := connector.Connect(context.Background(), repositories.LiveConfig{}); !errors.As(err, &configErr) {
		t.Errorf("Expected ConfigurationError from Connect, got %v", err)
	}
}

func TestGeminiWebSocketDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	connector := NewGeminiWebSocket(LiveConfig{APIKey: "k", Endpoint: wsURL(server), HandshakeTimeout: time.Second}, zaptest.NewLogger(t))

	var transportErr *domain.TransportError
	if _, err := connector.Connect(context.Background(), repositories.LiveConfig{}); !errors.As(err, &transportErr) {
		t.Errorf("Expected TransportError, got %v", err)
	}
}

func TestBuildSetupKeepsModelPrefix(t *testing.T) {
	msg := buildSetup("models/custom", "Puck", repositories.LiveConfig{})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if !strings.Contains(string(data), `"model":"models/custom"`) {
		t.Errorf("Expected model without double prefix, got %s", data)
	}
	if strings.Contains(string(data), "system_instruction") || strings.Contains(string(data), "tools") {
		t.Errorf("Expected empty instruction and tools to be omitted, got %s", data)
	}
}
