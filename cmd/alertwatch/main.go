// alertwatch tails the live alert stream of a running shesafe daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "shesafe API address")
	minSev := flag.String("min-severity", "LOW", "Only show alerts at or above this severity")
	flag.Parse()

	log.Init("info")

	sev, err := alert.ParseSeverity(*minSev)
	if err != nil {
		log.Error("bad flag", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/alerts"}
	backoff := time.Second
	for ctx.Err() == nil {
		err := watch(ctx, u.String(), sev)
		if ctx.Err() != nil {
			break
		}
		log.Warn("alert stream lost, reconnecting", "error", err, "in", backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// watch prints alerts from one connection until it fails or ctx is done.
func watch(ctx context.Context, endpoint string, minSev alert.Severity) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected", "url", endpoint)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev alert.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn("bad alert message", "error", err)
			continue
		}
		if ev.Severity.Priority() < minSev.Priority() {
			continue
		}
		fmt.Printf("%s  %-6s %-17s camera=%s  %.5f,%.5f\n",
			ev.Timestamp.Local().Format("15:04:05"), ev.Severity, ev.Kind, ev.Camera, ev.Lat, ev.Lon)
	}
}
