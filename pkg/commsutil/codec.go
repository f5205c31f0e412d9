package commsutil

import (
	"context"
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode: %w", codecLogPrefix, err)
	}
	return data, nil
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s - decode: %w", codecLogPrefix, err)
	}
	return nil
}

// RequestJSON sends req on subject and decodes the reply into resp.
// The deadline comes from ctx.
func RequestJSON(ctx context.Context, nc *comms.Conn, subject string, req, resp interface{}) error {
	data, err := EncodePayload(req)
	if err != nil {
		return err
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("%s - request on %s: %w", codecLogPrefix, subject, err)
	}
	return DecodePayload(msg.Data, resp)
}

// RespondJSON replies to msg with v encoded as JSON.
func RespondJSON(msg *comms.Msg, v interface{}) error {
	data, err := EncodePayload(v)
	if err != nil {
		return err
	}
	if err := msg.Respond(data); err != nil {
		return fmt.Errorf("%s - respond: %w", codecLogPrefix, err)
	}
	return nil
}
