package approval

import "context"

// ChannelPrompter is a Prompter that hands each request to whatever is
// on the other end of Pending — a CLI loop, a WebSocket client, an HTTP
// long-poll handler — and blocks until that side calls the resolve
// function it receives. This is the "actually blocks" prompter the
// source's always-AllowedOnce placeholder was missing.
type ChannelPrompter struct {
	requests chan pendingPrompt
}

type pendingPrompt struct {
	req   ActionRequest
	reply chan ApprovalStatus
}

// NewChannelPrompter constructs a ChannelPrompter with no buffering:
// a Prompt call blocks until something calls Pending, and Pending
// blocks until a Prompt call arrives.
func NewChannelPrompter() *ChannelPrompter {
	return &ChannelPrompter{requests: make(chan pendingPrompt)}
}

// Prompt implements Prompter.
func (p *ChannelPrompter) Prompt(ctx context.Context, req ActionRequest) (ApprovalStatus, error) {
	reply := make(chan ApprovalStatus, 1)

	select {
	case p.requests <- pendingPrompt{req: req, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case status := <-reply:
		return status, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending waits for the next outstanding prompt and returns it along
// with a resolve function the caller invokes with the user's choice.
// Calling resolve more than once has no effect beyond the first call.
func (p *ChannelPrompter) Pending(ctx context.Context) (ActionRequest, func(ApprovalStatus), error) {
	select {
	case pp := <-p.requests:
		resolved := false
		resolve := func(status ApprovalStatus) {
			if resolved {
				return
			}
			resolved = true
			pp.reply <- status
		}
		return pp.req, resolve, nil
	case <-ctx.Done():
		return ActionRequest{}, nil, ctx.Err()
	}
}
