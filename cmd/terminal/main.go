// Command terminal simulates a POS terminal: it signs in as an operator,
// attaches to the assistant hub, streams a synthetic microphone signal and
// optional camera frames, and reports the events and audio it receives.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image/jpeg"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/adapters/device"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
)

type options struct {
	server   string
	operator string
	pin      string
	duration time.Duration
	camera   bool
}

type operatorAuthResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	OperatorID string    `json:"operator_id"`
}

func main() {
	var opt options
	flag.StringVar(&opt.server, "server", "http://localhost:8080", "Assistant server base URL")
	flag.StringVar(&opt.operator, "operator", "till-1", "Operator ID to sign in as")
	flag.StringVar(&opt.pin, "pin", strings.TrimSpace(os.Getenv("OPERATOR_PIN")), "Operator PIN (also reads OPERATOR_PIN)")
	flag.DurationVar(&opt.duration, "duration", 20*time.Second, "How long to keep the session open")
	flag.BoolVar(&opt.camera, "camera", false, "Send camera frames and enable vision")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opt, logger); err != nil {
		logger.Fatal("Terminal failed", zap.Error(err))
	}
}

func run(ctx context.Context, opt options, logger *zap.Logger) error {
	token, err := signIn(ctx, opt)
	if err != nil {
		return err
	}
	logger.Info("Operator signed in", zap.String("operator", opt.operator))

	wsURL, err := websocketURL(opt.server)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to attach terminal (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to attach terminal: %w", err)
	}
	defer conn.Close()

	t := &terminal{conn: conn, logger: logger}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.readLoop()
	}()

	if err := t.command(map[string]interface{}{"type": "connect"}); err != nil {
		return err
	}

	sessionCtx, cancel := context.WithTimeout(ctx, opt.duration)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.streamMicrophone(sessionCtx)
	}()

	if opt.camera {
		if err := t.command(map[string]interface{}{"type": "camera", "enabled": true}); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.streamCamera(sessionCtx)
		}()
	}

	<-sessionCtx.Done()
	wg.Wait()

	if err := t.command(map[string]interface{}{"type": "disconnect"}); err != nil {
		logger.Warn("Failed to send disconnect", zap.Error(err))
	}

	// Give the hub a moment to report the closed state
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
	}

	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	logger.Info("Terminal finished",
		zap.Int("eventsReceived", t.events()),
		zap.Int("audioBytesReceived", t.audioBytes()))
	return nil
}

func signIn(ctx context.Context, opt options) (string, error) {
	body, _ := json.Marshal(map[string]string{"operator_id": opt.operator, "pin": opt.pin})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(opt.server, "/")+"/api/v1/auth/operator", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign in failed with status %d", resp.StatusCode)
	}

	var auth operatorAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to decode sign in response: %w", err)
	}
	return auth.Token, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

type terminal struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	eventCount int
	audioCount int
}

func (t *terminal) write(messageType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(messageType, data)
}

func (t *terminal) command(msg map[string]interface{}) error {
	msg["timestamp"] = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := t.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %v: %w", msg["type"], err)
	}
	return nil
}

func (t *terminal) readLoop() {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("Hub connection closed", zap.Error(err))
			}
			return
		}

		t.mu.Lock()
		if messageType == websocket.BinaryMessage {
			t.audioCount += len(data)
			t.mu.Unlock()
			continue
		}
		t.eventCount++
		t.mu.Unlock()

		var event map[string]interface{}
		if err := json.Unmarshal(data, &event); err != nil {
			t.logger.Warn("Undecodable event", zap.Error(err))
			continue
		}
		if event["type"] == "volume" {
			continue
		}
		t.logger.Info("Event", zap.Any("event", event))
	}
}

// streamMicrophone sends a synthetic 16 kHz voice-band tone as binary frames
func (t *terminal) streamMicrophone(ctx context.Context) {
	mic := device.NewSineMicrophone(t.logger)
	stream, err := mic.Open(ctx)
	if err != nil {
		t.logger.Error("Failed to open simulated microphone", zap.Error(err))
		return
	}
	defer stream.Close()

	for {
		block, err := stream.Read(ctx)
		if err != nil {
			return
		}
		if err := t.write(websocket.BinaryMessage, audio.EncodePCM16(block)); err != nil {
			t.logger.Warn("Failed to send microphone audio", zap.Error(err))
			return
		}
	}
}

// streamCamera posts a test-pattern frame every second
func (t *terminal) streamCamera(ctx context.Context) {
	stream, err := device.NewStillCamera().Open(ctx)
	if err != nil {
		t.logger.Error("Failed to open simulated camera", zap.Error(err))
		return
	}
	defer stream.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := stream.Snapshot(ctx)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
			continue
		}
		if err := t.command(map[string]interface{}{
			"type": "camera_frame",
			"data": base64.StdEncoding.EncodeToString(buf.Bytes()),
		}); err != nil {
			t.logger.Warn("Failed to send camera frame", zap.Error(err))
			return
		}
	}
}

func (t *terminal) events() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventCount
}

func (t *terminal) audioBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioCount
}
