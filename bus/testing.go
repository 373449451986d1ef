package bus

import (
	"context"
	"fmt"
	"sync"
)

// Recorder is an in-memory Bus for tests. It records every outbound call and
// answers role lookups from a scripted table. Intentionally exported, for use
// in other packages.
type Recorder struct {
	mu sync.Mutex

	Sent       []SentMessage
	Deleted    []MessageRef
	Restricted []Restriction
	Banned     []UserRef
	Kicked     []UserRef

	// role table, keyed chatID + "/" + userID
	Roles map[string]Role

	nextID int
}

type SentMessage struct {
	ChatID    string
	MessageID string
	Text      string
	ReplyTo   string
	Buttons   [][]Button
}

type MessageRef struct {
	ChatID    string
	MessageID string
}

type UserRef struct {
	ChatID string
	UserID string
}

type Restriction struct {
	ChatID  string
	UserID  string
	Cap     Capability
	Allowed bool
}

var _ Bus = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		Roles: make(map[string]Role),
	}
}

func (r *Recorder) SetRole(chatID, userID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Roles[chatID+"/"+userID] = role
}

func (r *Recorder) SendMessage(ctx context.Context, chatID, text string, opts *SendOpts) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg := SentMessage{
		ChatID:    chatID,
		MessageID: fmt.Sprintf("sent-%d", r.nextID),
		Text:      text,
	}
	if opts != nil {
		msg.ReplyTo = opts.ReplyTo
		msg.Buttons = opts.Buttons
	}
	r.Sent = append(r.Sent, msg)
	return msg.MessageID, nil
}

func (r *Recorder) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, MessageRef{ChatID: chatID, MessageID: messageID})
	return nil
}

func (r *Recorder) RestrictUser(ctx context.Context, chatID, userID string, cap Capability, allowed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Restricted = append(r.Restricted, Restriction{ChatID: chatID, UserID: userID, Cap: cap, Allowed: allowed})
	return nil
}

func (r *Recorder) BanUser(ctx context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Banned = append(r.Banned, UserRef{ChatID: chatID, UserID: userID})
	return nil
}

func (r *Recorder) KickUser(ctx context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Kicked = append(r.Kicked, UserRef{ChatID: chatID, UserID: userID})
	return nil
}

func (r *Recorder) GetMemberRole(ctx context.Context, chatID, userID string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.Roles[chatID+"/"+userID]
	if !ok {
		return RoleMember, nil
	}
	return role, nil
}

// LastSent returns the most recent sent message, or nil.
func (r *Recorder) LastSent() *SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return nil
	}
	return &r.Sent[len(r.Sent)-1]
}
