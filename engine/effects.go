package engine

import (
	"github.com/warden-social/warden/captcha"
)

type CounterRef struct {
	Name string
	Val  string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

// NoticeRef is a localized notice queued for the chat. Rules add at most one
// notice per triggering event, preserving the one-notice-per-action contract.
type NoticeRef struct {
	Key    string
	Params map[string]string
}

// Mutable container for all the possible side effects from rule execution.
// Effects are collected while rules run and persisted in bulk at the end, so
// a panicking rule can never leave half-applied transport calls behind.
type Effects struct {
	// delete the message that triggered processing
	DeleteOriginal bool
	// channel to copy the original message into, for archiving
	ArchiveTo string
	// restrict (false) or restore (true) the sender's send capability
	RestrictSend *bool
	// remove the sender from the chat
	Ban  bool
	Kick bool
	// localized notices to send to the chat
	Notices []NoticeRef
	// verbatim reply texts (trigger responses)
	Replies []string
	// captcha challenge whose prompt should be sent with answer buttons
	CaptchaPrompt *captcha.Challenge
	// challenge prompt message to delete (challenge resolved or cancelled)
	DeletePrompt *captcha.Challenge
	// counters to increment after all rule processing
	CounterIncrements         []CounterRef
	CounterDistinctIncrements []CounterDistinctRef
	// when true, no further rules run for this event
	Handled bool
}

func (e *Effects) MarkDeleteOriginal() {
	e.DeleteOriginal = true
}

func (e *Effects) Archive(channelID string) {
	e.ArchiveTo = channelID
}

// Notice enqueues one localized notice.
func (e *Effects) Notice(key string, params map[string]string) {
	e.Notices = append(e.Notices, NoticeRef{Key: key, Params: params})
}

func (e *Effects) Reply(text string) {
	e.Replies = append(e.Replies, text)
}

func (e *Effects) MuteSender() {
	v := false
	e.RestrictSend = &v
}

func (e *Effects) UnmuteSender() {
	v := true
	e.RestrictSend = &v
}

func (e *Effects) BanSender() {
	e.Ban = true
}

func (e *Effects) KickSender() {
	e.Kick = true
}

// Increment enqueues the named counter for all time periods.
func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

// IncrementDistinct enqueues the named distinct-value counter.
func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

// SetHandled stops the pipeline after the current rule.
func (e *Effects) SetHandled() {
	e.Handled = true
}
