package mockbase

import (
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type channel struct {
	info     ChannelResponse
	messages []MessageResponse
}

// channelStore keeps channels and their message history
type channelStore struct {
	mu       sync.RWMutex
	channels map[string]*channel
	now      func() time.Time
}

func newChannelStore(now func() time.Time) *channelStore {
	return &channelStore{
		channels: make(map[string]*channel),
		now:      now,
	}
}

func (s *channelStore) create(name, description string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[name]; ok {
		ch.info.Description = description
		ch.info.Enabled = enabled
		return
	}
	s.channels[name] = &channel{info: ChannelResponse{
		Name:        name,
		Description: description,
		Enabled:     enabled,
		CreatedAt:   s.now().UTC(),
	}}
}

func (s *channelStore) list() []ChannelResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelResponse, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func channelParam(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("channel"))
	if err != nil || name == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid channel name")
	}
	return name, nil
}

func (s *Server) listChannels(c *fiber.Ctx) error {
	return c.JSON(s.channels.list())
}

// publishMessage handles POST /api/realtime/channels/:channel/messages
func (s *Server) publishMessage(c *fiber.Ctx) error {
	name, err := channelParam(c)
	if err != nil {
		return err
	}
	var req PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body is not a publish request")
	}
	if req.Event == "" {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "event is required")
	}
	if len(req.Payload) == 0 {
		req.Payload = []byte("null")
	}

	s.channels.mu.Lock()
	ch, ok := s.channels.channels[name]
	if !ok || !ch.info.Enabled {
		s.channels.mu.Unlock()
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse(fiber.StatusNotFound, ErrCodeNotFound, "channel "+name+" does not exist").
					WithNextActions("create the channel before publishing"),
			)
		}
		return apiError(c, fiber.StatusForbidden, ErrCodeForbidden, "channel "+name+" is disabled")
	}
	msg := MessageResponse{
		ID:        uuid.NewString(),
		Channel:   name,
		Event:     req.Event,
		Payload:   req.Payload,
		SenderID:  principalOf(c).userID,
		CreatedAt: s.channels.now().UTC(),
	}
	ch.messages = append(ch.messages, msg)
	s.channels.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// listMessages handles GET /api/realtime/channels/:channel/messages
func (s *Server) listMessages(c *fiber.Ctx) error {
	name, err := channelParam(c)
	if err != nil {
		return err
	}
	offset, err := nonNegativeQueryInt(c, "offset")
	if err != nil {
		return err
	}
	limit, err := nonNegativeQueryInt(c, "limit")
	if err != nil {
		return err
	}
	event := c.Query("event")

	s.channels.mu.RLock()
	ch, ok := s.channels.channels[name]
	var messages []MessageResponse
	if ok {
		messages = make([]MessageResponse, 0, len(ch.messages))
		for _, m := range ch.messages {
			if event == "" || m.Event == event {
				messages = append(messages, m)
			}
		}
	}
	s.channels.mu.RUnlock()

	if !ok {
		return apiError(c, fiber.StatusNotFound, ErrCodeNotFound, "channel "+name+" does not exist")
	}
	return c.JSON(page(messages, offset, limit))
}
