// Command streamtap attaches to a stream backend from the terminal. It
// prints every frame it sees, or only one session's frames with -session,
// and forwards stdin lines as user messages.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/agent-console/stream/pkg/stream"
	"github.com/agent-console/stream/pkg/wire"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/api/stream", "stream endpoint URL")
	token := flag.String("token", os.Getenv("STREAM_TOKEN"), "attach token")
	sessionID := flag.String("session", "", "only show this session; required for sending")
	flag.Parse()

	done := make(chan struct{})
	client := stream.NewClient(stream.Config{
		URL: *url,
		OnDisconnect: func(reason stream.DisconnectReason) {
			log.Printf("disconnected: %s", reason)
			close(done)
		},
	})

	if err := client.Connect(*token); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Disconnect()

	if *sessionID != "" {
		defer client.Subscribe(*sessionID, printFrame)()
	} else {
		defer client.SubscribeGlobal(printFrame)()
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if *sessionID == "" {
				log.Println("set -session to send messages")
				continue
			}
			if line == "/interrupt" {
				if err := client.Interrupt(*sessionID); err != nil {
					log.Printf("interrupt: %v", err)
				}
				continue
			}
			if err := client.SendUserMessage(*sessionID, line); err != nil {
				log.Printf("send: %v", err)
			}
		}
	}()

	<-done
}

func printFrame(frame wire.Frame) {
	switch f := frame.(type) {
	case *wire.Message:
		var payload struct {
			Text string `json:"text"`
		}
		text := string(f.Payload)
		if err := json.Unmarshal(f.Payload, &payload); err == nil && payload.Text != "" {
			text = payload.Text
		}
		fmt.Printf("[%s #%d] %s: %s\n", f.SessionID, f.Sequence, f.Role, text)
	case *wire.Error:
		fmt.Printf("[%s] error: %s\n", f.SessionID, f.Message)
	}
}
