package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	status ApprovalStatus
	err    error
	calls  int
}

func (p *scriptedPrompter) Prompt(ctx context.Context, req ActionRequest) (ApprovalStatus, error) {
	p.calls++
	return p.status, p.err
}

// TestDecide_AutoDenyRuleSkipsPrompt mirrors spec scenario 6: a
// MatchCmdPat("rm -rf") rule with auto_approve=false denies without
// ever reaching the prompter.
func TestDecide_AutoDenyRuleSkipsPrompt(t *testing.T) {
	prompter := &scriptedPrompter{status: AllowedOnce}
	e := NewEngine(prompter)
	defer e.Close()
	e.AddRule(DenyDangerousCommands())

	req := ActionRequest{
		ID:   "req-1",
		Type: NewCommandExec("rm -rf /tmp/x"),
	}

	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Denied, status)
	assert.Zero(t, prompter.calls)
}

func TestDecide_AutoApproveRuleSkipsPrompt(t *testing.T) {
	prompter := &scriptedPrompter{status: Denied}
	e := NewEngine(prompter)
	defer e.Close()
	e.AddRule(AllowFileReadsInProject("/home/me/proj"))

	req := ActionRequest{
		ID:      "req-2",
		Type:    NewFileRead("/home/me/proj/main.go"),
		Context: ActionContext{ProjectPath: "/home/me/proj"},
	}

	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, AllowedOnce, status)
	assert.Zero(t, prompter.calls)
}

func TestDecide_RuleRequiresProjectScopeMatch(t *testing.T) {
	prompter := &scriptedPrompter{status: AllowedOnce}
	e := NewEngine(prompter)
	defer e.Close()
	e.AddRule(AllowFileReadsInProject("/home/me/other-proj"))

	req := ActionRequest{
		ID:      "req-3",
		Type:    NewFileRead("/home/me/proj/main.go"),
		Context: ActionContext{ProjectPath: "/home/me/proj"},
	}

	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	// Scope doesn't match, so the rule is skipped and we fall through to
	// the prompt.
	assert.Equal(t, AllowedOnce, status)
	assert.Equal(t, 1, prompter.calls)
}

func TestDecide_SessionCacheShortCircuitsPrompt(t *testing.T) {
	prompter := &scriptedPrompter{status: AllowedSession}
	e := NewEngine(prompter)
	defer e.Close()

	req := ActionRequest{ID: "a", Type: NewCommandExec("ls")}
	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, AllowedSession, status)
	assert.Equal(t, 1, prompter.calls)

	// Second request with the same action kind should hit the session
	// cache, not the prompter again.
	req2 := ActionRequest{ID: "b", Type: NewCommandExec("ls -la")}
	status2, err := e.Decide(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, AllowedSession, status2)
	assert.Equal(t, 1, prompter.calls)
}

func TestDecide_ProjectCachePersistsDenied(t *testing.T) {
	prompter := &scriptedPrompter{status: Denied}
	e := NewEngine(prompter)
	defer e.Close()

	req := ActionRequest{
		ID:      "a",
		Type:    NewFileWrite("secrets.env"),
		Context: ActionContext{ProjectPath: "/proj"},
	}
	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Denied, status)
	assert.Equal(t, 1, prompter.calls)

	req2 := ActionRequest{
		ID:      "b",
		Type:    NewFileWrite("other.env"),
		Context: ActionContext{ProjectPath: "/proj"},
	}
	status2, err := e.Decide(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, Denied, status2)
	assert.Equal(t, 1, prompter.calls)
}

func TestDecide_AllowedOnceIsNeverCached(t *testing.T) {
	prompter := &scriptedPrompter{status: AllowedOnce}
	e := NewEngine(prompter)
	defer e.Close()

	req := ActionRequest{ID: "a", Type: NewCommandExec("ls")}
	_, err := e.Decide(context.Background(), req)
	require.NoError(t, err)

	_, err = e.Decide(context.Background(), ActionRequest{ID: "b", Type: NewCommandExec("ls")})
	require.NoError(t, err)

	assert.Equal(t, 2, prompter.calls)
}

func TestDecide_TimeWindowConditionExcludesRule(t *testing.T) {
	prompter := &scriptedPrompter{status: AllowedOnce}
	e := NewEngine(prompter)
	defer e.Close()
	e.clock = func() time.Time { return time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) }

	e.AddRule(ApprovalRule{
		Name:          "business-hours-only",
		ActionPattern: ActionPattern{Kind: MatchAll},
		AutoApprove:   true,
		Conditions:    []RuleCondition{{Kind: TimeWindow, StartHour: 9, EndHour: 17}},
	})

	req := ActionRequest{ID: "a", Type: NewCommandExec("ls")}
	status, err := e.Decide(context.Background(), req)
	require.NoError(t, err)
	// 23:00 falls outside [9,17], so the rule doesn't apply; falls through
	// to the prompt.
	assert.Equal(t, AllowedOnce, status)
	assert.Equal(t, 1, prompter.calls)
}

func TestChannelPrompter_BlocksUntilResolved(t *testing.T) {
	prompter := NewChannelPrompter()
	e := NewEngine(prompter)
	defer e.Close()

	done := make(chan ApprovalStatus, 1)
	go func() {
		status, err := e.Decide(context.Background(), ActionRequest{ID: "a", Type: NewCommandExec("ls")})
		require.NoError(t, err)
		done <- status
	}()

	req, resolve, err := prompter.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ls", req.Type.Command)

	select {
	case <-done:
		t.Fatal("Decide resolved before the prompt was answered")
	case <-time.After(20 * time.Millisecond):
	}

	resolve(AllowedOnce)

	select {
	case status := <-done:
		assert.Equal(t, AllowedOnce, status)
	case <-time.After(time.Second):
		t.Fatal("Decide never resolved after prompt answer")
	}
}
