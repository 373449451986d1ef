package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError((&Event{Kind: EventMessage, ChatID: "c1", UserID: "u1", MessageID: "m1", Text: "hi"}).Validate())
	assert.NoError((&Event{Kind: EventJoin, ChatID: "c1", UserID: "u1"}).Validate())
	assert.NoError((&Event{Kind: EventLeave, ChatID: "c1", UserID: "u1"}).Validate())
	assert.NoError((&Event{Kind: EventCallback, ChatID: "c1", UserID: "u1", Data: "captcha:12"}).Validate())

	assert.Error((&Event{Kind: EventMessage, UserID: "u1", MessageID: "m1"}).Validate())
	assert.Error((&Event{Kind: EventMessage, ChatID: "c1", UserID: "u1"}).Validate())
	assert.Error((&Event{Kind: EventCallback, ChatID: "c1", UserID: "u1"}).Validate())
	assert.Error((&Event{Kind: "typo", ChatID: "c1", UserID: "u1"}).Validate())
}

func TestRoleAuthorized(t *testing.T) {
	assert := assert.New(t)

	assert.True(RoleCreator.Authorized())
	assert.True(RoleAdmin.Authorized())
	assert.True(RoleMod.Authorized())
	assert.False(RoleMember.Authorized())
	assert.False(RoleNone.Authorized())
}

func TestRecorder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	rec := NewRecorder()
	id1, err := rec.SendMessage(ctx, "c1", "one", nil)
	assert.NoError(err)
	id2, err := rec.SendMessage(ctx, "c1", "two", &SendOpts{ReplyTo: "m9"})
	assert.NoError(err)
	assert.NotEqual(id1, id2)
	assert.Equal("two", rec.LastSent().Text)
	assert.Equal("m9", rec.LastSent().ReplyTo)

	role, err := rec.GetMemberRole(ctx, "c1", "u1")
	assert.NoError(err)
	assert.Equal(RoleMember, role)
	rec.SetRole("c1", "u1", RoleAdmin)
	role, err = rec.GetMemberRole(ctx, "c1", "u1")
	assert.NoError(err)
	assert.Equal(RoleAdmin, role)
}

func TestRateLimitedPassesThrough(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	rec := NewRecorder()
	limited := NewRateLimited(rec, 100, 10)

	id, err := limited.SendMessage(ctx, "c1", "hello", nil)
	assert.NoError(err)
	assert.NotEmpty(id)
	assert.NoError(limited.DeleteMessage(ctx, "c1", id))
	assert.NoError(limited.RestrictUser(ctx, "c1", "u1", CapSendMessages, false))
	assert.NoError(limited.BanUser(ctx, "c1", "u1"))
	assert.NoError(limited.KickUser(ctx, "c1", "u1"))
	assert.Len(rec.Sent, 1)
	assert.Len(rec.Deleted, 1)
	assert.Len(rec.Restricted, 1)
	assert.Len(rec.Banned, 1)
	assert.Len(rec.Kicked, 1)
}
