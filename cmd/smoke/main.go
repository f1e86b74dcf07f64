// Command smoke drives one command through a running relay: it obtains a
// device token, opens the websocket and prints every envelope it receives.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

// A multiple of three so the base64 chunks concatenate without padding.
const audioChunkSize = 15 * 1024

type envelope struct {
	Type          string          `json:"type"`
	Stage         string          `json:"stage,omitempty"`
	Text          string          `json:"text,omitempty"`
	Clarification json.RawMessage `json:"clarification,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Code          string          `json:"code,omitempty"`
	Message       string          `json:"message,omitempty"`
}

func main() {
	server := pflag.String("server", "localhost:3000", "relay host:port")
	deviceID := pflag.String("device", "smoke-device", "device id to request a token for")
	text := pflag.String("text", "turn on the kitchen lights", "transcript to send as a text-command")
	audioPath := pflag.String("audio", "", "audio file to stream instead of --text")
	format := pflag.String("format", "webm", "audio format for --audio")
	choice := pflag.Int("choice", -1, "candidate index to answer a clarification with")
	timeout := pflag.Duration("timeout", 30*time.Second, "how long to wait for the command to finish")
	pflag.Parse()

	token, err := requestToken(*server, *deviceID)
	if err != nil {
		log.Fatal("Failed to obtain token: ", err)
	}

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws", RawQuery: url.Values{"token": {token}}.Encode()}
	log.Printf("connecting to %s", u.Host)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer conn.Close()

	if *audioPath != "" {
		err = streamAudio(conn, *audioPath, *format)
	} else {
		err = conn.WriteJSON(map[string]interface{}{"type": "text-command", "transcript": *text})
	}
	if err != nil {
		log.Fatal("send: ", err)
	}

	deadline := time.Now().Add(*timeout)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Fatal("read: ", err)
		}
		fmt.Println(string(raw))

		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("unparseable envelope: %v", err)
			continue
		}

		switch msg.Type {
		case "command-complete":
			return
		case "error":
			os.Exit(1)
		case "clarification-required":
			if *choice < 0 {
				log.Printf("clarification required; rerun with --choice to answer")
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{"type": "clarification-choice", "choiceIndex": *choice}); err != nil {
				log.Fatal("send choice: ", err)
			}
			*choice = -1
		}
	}
}

func requestToken(server, deviceID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"deviceId": deviceID, "deviceName": "smoke"})
	resp, err := http.Post("http://"+server+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed: %d %s", resp.StatusCode, raw)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func streamAudio(conn *websocket.Conn, path, format string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "audio-start", "format": format}); err != nil {
		return err
	}
	for start := 0; start < len(data); start += audioChunkSize {
		end := start + audioChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := base64.StdEncoding.EncodeToString(data[start:end])
		if err := conn.WriteJSON(map[string]interface{}{"type": "audio-chunk", "data": chunk}); err != nil {
			return err
		}
	}
	log.Printf("streamed %d bytes of %s audio", len(data), format)
	return conn.WriteJSON(map[string]interface{}{"type": "audio-end"})
}
