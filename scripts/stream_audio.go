package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/sabda/pkg/resilience"
	"github.com/harunnryd/sabda/pkg/sabda"
)

func main() {
	configPath := flag.String("config", "", "gateway config used to derive the websocket URL")
	wsURL := flag.String("url", "", "websocket base URL, e.g. ws://localhost:8000/ws/")
	file := flag.String("file", "test_audio.webm", "audio file to stream")
	chunkSize := flag.Int("chunk", 32*1024, "bytes per binary frame")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between frames")
	source := flag.String("source", "", "source language")
	target := flag.String("target", "", "target language")
	clientID := flag.String("client", "", "client id; random when empty")
	flag.Parse()

	audio, err := os.ReadFile(*file)
	if err != nil || len(audio) == 0 {
		fmt.Println("audio error:", err)
		os.Exit(1)
	}
	base := *wsURL
	if base == "" {
		cfg, err := sabda.LoadConfig(*configPath)
		if err != nil {
			fmt.Println("config error:", err)
			os.Exit(1)
		}
		base = "ws://" + localAddr(cfg.Server.Addr) + cfg.Websocket.Path
	}
	id := *clientID
	if id == "" {
		id = uuid.NewString()
	}
	endpoint, err := url.JoinPath(base, id)
	if err != nil {
		fmt.Println("url error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conn *websocket.Conn
	err = resilience.NewRetryPolicy(3, 500*time.Millisecond).Do(ctx, func(ctx context.Context) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			fmt.Println("dial failed, retrying:", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("connected:", endpoint)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var pretty map[string]any
			if json.Unmarshal(msg, &pretty) == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(out))
				continue
			}
			fmt.Println(string(msg))
		}
	}()

	update := map[string]string{}
	if strings.TrimSpace(*source) != "" {
		update["source_lang"] = *source
	}
	if strings.TrimSpace(*target) != "" {
		update["target_lang"] = *target
	}
	if len(update) > 0 {
		if err := conn.WriteJSON(update); err != nil {
			fmt.Println("write error:", err)
			os.Exit(1)
		}
	}

	size := *chunkSize
	if size <= 0 {
		size = len(audio)
	}
	for start := 0; start < len(audio); start += size {
		end := min(start+size, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			fmt.Println("write error:", err)
			os.Exit(1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}

	// Leave time for the last results before closing.
	select {
	case <-ctx.Done():
	case <-done:
	case <-time.After(10 * time.Second):
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
