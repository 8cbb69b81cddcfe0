package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const channelsPath = "/api/realtime/channels"

// Realtime publishes to and reads history from realtime channels over HTTP.
// Live subscriptions are not provided by this client.
type Realtime struct {
	transport *httpTransport
}

// Channel describes a realtime channel.
type Channel struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is one event published on a channel.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Event     string    `json:"event"`
	Payload   Value     `json:"payload"`
	SenderID  string    `json:"senderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageQuery pages through channel history.
type MessageQuery struct {
	Event  string
	Limit  int
	Offset int
}

type publishBody struct {
	Event   string `json:"event"`
	Payload Value  `json:"payload"`
}

// ListChannels returns every channel visible to the caller.
func (r *Realtime) ListChannels(ctx context.Context) ([]Channel, error) {
	channels := []Channel{}
	if err := r.transport.call(ctx, request{Method: http.MethodGet, Path: channelsPath}, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// Publish sends event with payload on channel and returns the stored message.
//
// Example:
//
//	msg, err := client.Realtime().Publish(ctx, "room:42", "typing",
//	    sdk.Object(map[string]sdk.Value{"user": sdk.String("ada")}))
func (r *Realtime) Publish(ctx context.Context, channel, event string, payload Value) (*Message, error) {
	if channel == "" || event == "" {
		return nil, fmt.Errorf("%w: publish needs a channel and an event", ErrInvalidInput)
	}
	body, err := marshalJSON(publishBody{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var msg Message
	err = r.transport.call(ctx, request{
		Method: http.MethodPost,
		Path:   escapePath(channelsPath, channel, "messages"),
		Body:   body,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages returns stored messages of channel, oldest first.
func (r *Realtime) Messages(ctx context.Context, channel string, query *MessageQuery) ([]Message, error) {
	if channel == "" {
		return nil, fmt.Errorf("%w: empty channel name", ErrInvalidInput)
	}
	q := url.Values{}
	if query != nil {
		if query.Event != "" {
			q.Set("event", query.Event)
		}
		if query.Limit > 0 {
			q.Set("limit", strconv.Itoa(query.Limit))
		}
		if query.Offset > 0 {
			q.Set("offset", strconv.Itoa(query.Offset))
		}
	}
	messages := []Message{}
	err := r.transport.call(ctx, request{
		Method: http.MethodGet,
		Path:   escapePath(channelsPath, channel, "messages"),
		Query:  q.Encode(),
	}, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}
