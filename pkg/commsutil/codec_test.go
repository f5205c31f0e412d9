package commsutil

import (
	"context"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "map", input: map[string]string{"path": "/Orders(1)"}, want: `{"path":"/Orders(1)"}`},
		{name: "nil", input: nil, want: "null"},
		{name: "slice", input: []string{"$auto"}, want: `["$auto"]`},
		{name: "channel is not serializable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if got := string(data); got != tt.want {
				t.Errorf("commsutil:codec_test - EncodePayload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	var out struct {
		GroupID string `json:"groupId"`
	}
	if err := DecodePayload([]byte(`{"groupId":"isolated.0"}`), &out); err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	if out.GroupID != "isolated.0" {
		t.Errorf("commsutil:codec_test - GroupID = %q", out.GroupID)
	}
	if err := DecodePayload([]byte(""), &out); err == nil {
		t.Error("commsutil:codec_test - expected error for empty data")
	}
	if err := DecodePayload([]byte("{invalid}"), &out); err == nil {
		t.Error("commsutil:codec_test - expected error for invalid json")
	}
}

func startTestServer(t *testing.T, port int) *comms.Conn {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: port, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("commsutil:codec_test - failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("commsutil:codec_test - server not ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := comms.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("commsutil:codec_test - connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestRequestRespondJSON(t *testing.T) {
	nc := startTestServer(t, 14301)

	type ping struct {
		N int `json:"n"`
	}
	sub, err := nc.Subscribe("test.echo", func(msg *comms.Msg) {
		var in ping
		if err := DecodePayload(msg.Data, &in); err != nil {
			return
		}
		_ = RespondJSON(msg, ping{N: in.N + 1})
	})
	if err != nil {
		t.Fatalf("commsutil:codec_test - subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out ping
	if err := RequestJSON(ctx, nc, "test.echo", ping{N: 1}, &out); err != nil {
		t.Fatalf("commsutil:codec_test - RequestJSON: %v", err)
	}
	if out.N != 2 {
		t.Errorf("commsutil:codec_test - expected 2, got %d", out.N)
	}
}

func TestRequestJSON_NoResponders(t *testing.T) {
	nc := startTestServer(t, 14302)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var out map[string]interface{}
	err := RequestJSON(ctx, nc, "nobody.home", map[string]string{}, &out)
	if !errors.Is(err, comms.ErrNoResponders) {
		t.Fatalf("commsutil:codec_test - expected ErrNoResponders, got %v", err)
	}
}
