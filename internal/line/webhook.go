// Package line тонкая обёртка над line-bot-sdk-go: разбор вебхуков и
// вызовы Messaging API в типах, которые нужны боту.
package line

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader заголовок с подписью тела вебхука.
const SignatureHeader = "X-Line-Signature"

// ErrInvalidSignature подпись отсутствует или не совпадает.
var ErrInvalidSignature = errors.New("line: invalid signature")

// Типы событий вебхука.
const (
	EventMessage  = "message"
	EventFollow   = "follow"
	EventUnfollow = "unfollow"
	EventJoin     = "join"
	EventLeave    = "leave"
)

// Типы источника события.
const (
	SourceUser  = "user"
	SourceGroup = "group"
	SourceRoom  = "room"
)

// Типы сообщений.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
	MessageAudio = "audio"
	MessageFile  = "file"
)

// maxBodySize ограничение на размер тела вебхука.
const maxBodySize = 1 << 20

// Source откуда пришло событие.
type Source struct {
	Type    string
	UserID  string
	GroupID string
	RoomID  string
}

// ID идентификатор источника: группа, комната или пользователь.
func (s Source) ID() string {
	switch s.Type {
	case SourceGroup:
		return s.GroupID
	case SourceRoom:
		return s.RoomID
	default:
		return s.UserID
	}
}

// Message содержимое события message.
type Message struct {
	ID       string
	Type     string
	Text     string
	FileName string
}

// Event событие вебхука.
type Event struct {
	Type       string
	Timestamp  int64
	Source     Source
	ReplyToken string
	Message    *Message
}

// IsText true для текстового сообщения.
func (e Event) IsText() bool {
	return e.Type == EventMessage && e.Message != nil && e.Message.Type == MessageText
}

// CallbackRequest тело вебхука.
type CallbackRequest struct {
	Destination string
	Events      []Event
}

// ParseRequest проверяет подпись и разбирает тело вебхука.
func ParseRequest(channelSecret string, r *http.Request) (*CallbackRequest, error) {
	const op = "line.ParseRequest"

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	cb, err := webhook.ParseRequest(channelSecret, r)
	if errors.Is(err, webhook.ErrInvalidSignature) {
		return nil, ErrInvalidSignature
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req := &CallbackRequest{
		Destination: cb.Destination,
		Events:      make([]Event, 0, len(cb.Events)),
	}
	for _, e := range cb.Events {
		if e == nil {
			continue
		}
		req.Events = append(req.Events, fromEvent(e))
	}
	return req, nil
}

func fromEvent(e webhook.EventInterface) Event {
	event := Event{Type: e.GetType()}
	switch ev := e.(type) {
	case webhook.MessageEvent:
		event.Timestamp = ev.Timestamp
		event.Source = fromSource(ev.Source)
		event.ReplyToken = ev.ReplyToken
		event.Message = fromMessage(ev.Message)
	case webhook.FollowEvent:
		event.Timestamp = ev.Timestamp
		event.Source = fromSource(ev.Source)
		event.ReplyToken = ev.ReplyToken
	case webhook.UnfollowEvent:
		event.Timestamp = ev.Timestamp
		event.Source = fromSource(ev.Source)
	case webhook.JoinEvent:
		event.Timestamp = ev.Timestamp
		event.Source = fromSource(ev.Source)
		event.ReplyToken = ev.ReplyToken
	case webhook.LeaveEvent:
		event.Timestamp = ev.Timestamp
		event.Source = fromSource(ev.Source)
	}
	return event
}

func fromSource(s webhook.SourceInterface) Source {
	switch src := s.(type) {
	case webhook.UserSource:
		return Source{Type: SourceUser, UserID: src.UserId}
	case webhook.GroupSource:
		return Source{Type: SourceGroup, GroupID: src.GroupId, UserID: src.UserId}
	case webhook.RoomSource:
		return Source{Type: SourceRoom, RoomID: src.RoomId, UserID: src.UserId}
	default:
		return Source{}
	}
}

func fromMessage(m webhook.MessageContentInterface) *Message {
	if m == nil {
		return nil
	}
	msg := &Message{Type: m.GetType()}
	switch c := m.(type) {
	case webhook.TextMessageContent:
		msg.ID = c.Id
		msg.Text = c.Text
	case webhook.ImageMessageContent:
		msg.ID = c.Id
	case webhook.VideoMessageContent:
		msg.ID = c.Id
	case webhook.AudioMessageContent:
		msg.ID = c.Id
	case webhook.FileMessageContent:
		msg.ID = c.Id
		msg.FileName = c.FileName
	}
	return msg
}
