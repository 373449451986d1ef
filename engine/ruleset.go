package engine

type MessageRuleFunc = func(c *MessageContext) error
type JoinRuleFunc = func(c *JoinContext) error
type LeaveRuleFunc = func(c *LeaveContext) error
type CallbackRuleFunc = func(c *CallbackContext) error

// Holds the ordered rules to run per event kind, and dispatches events to
// them. Message rules run in slice order and stop at the first rule that
// marks the event handled; rule order is load-bearing (enforcement before
// triggers, triggers before admin input collection).
type RuleSet struct {
	MessageRules  []MessageRuleFunc
	JoinRules     []JoinRuleFunc
	LeaveRules    []LeaveRuleFunc
	CallbackRules []CallbackRuleFunc
}

func (r *RuleSet) CallMessageRules(c *MessageContext) error {
	for _, f := range r.MessageRules {
		if err := f(c); err != nil {
			return err
		}
		if c.effects.Handled {
			break
		}
	}
	return nil
}

func (r *RuleSet) CallJoinRules(c *JoinContext) error {
	for _, f := range r.JoinRules {
		if err := f(c); err != nil {
			return err
		}
		if c.effects.Handled {
			break
		}
	}
	return nil
}

func (r *RuleSet) CallLeaveRules(c *LeaveContext) error {
	for _, f := range r.LeaveRules {
		if err := f(c); err != nil {
			return err
		}
		if c.effects.Handled {
			break
		}
	}
	return nil
}

func (r *RuleSet) CallCallbackRules(c *CallbackContext) error {
	for _, f := range r.CallbackRules {
		if err := f(c); err != nil {
			return err
		}
		if c.effects.Handled {
			break
		}
	}
	return nil
}

// DefaultRules assembles the canonical pipeline order.
func DefaultRules() RuleSet {
	return RuleSet{
		MessageRules: []MessageRuleFunc{
			ArchiveMessageRule,
			FloodMessageRule,
			BlacklistMessageRule,
			TriggerMessageRule,
			LinkLockMessageRule,
			PendingInputMessageRule,
			AdminCommandMessageRule,
		},
		JoinRules: []JoinRuleFunc{
			CaptchaJoinRule,
			WelcomeJoinRule,
		},
		LeaveRules: []LeaveRuleFunc{
			CaptchaLeaveRule,
			FarewellLeaveRule,
		},
		CallbackRules: []CallbackRuleFunc{
			CaptchaCallbackRule,
		},
	}
}
