package approval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// Prompter presents an action to a human and blocks until they choose a
// disposition. Unlike the terminal approver this replaces, a real
// Prompter must actually wait for the answer — it must never resolve
// unconditionally.
type Prompter interface {
	Prompt(ctx context.Context, req ActionRequest) (ApprovalStatus, error)
}

type decisionJob struct {
	ctx   context.Context
	req   ActionRequest
	reply chan decisionResult
}

type decisionResult struct {
	status ApprovalStatus
	err    error
}

// Engine implements the ordered approval check of §4.7: rule engine,
// then session cache, then project cache, then an interactive prompt.
// Decisions are serialized through a single goroutine so the user is
// never asked two questions at once.
type Engine struct {
	mu               sync.RWMutex
	rules            map[string]ApprovalRule
	sessionApprovals map[ActionKind]ApprovalStatus
	projectApprovals map[string]map[ActionKind]ApprovalStatus

	prompter Prompter
	clock    func() time.Time

	jobs chan decisionJob
	done chan struct{}
}

// NewEngine constructs an Engine backed by prompter and starts its
// serializing decision loop.
func NewEngine(prompter Prompter) *Engine {
	e := &Engine{
		rules:            make(map[string]ApprovalRule),
		sessionApprovals: make(map[ActionKind]ApprovalStatus),
		projectApprovals: make(map[string]map[ActionKind]ApprovalStatus),
		prompter:         prompter,
		clock:            time.Now,
		jobs:             make(chan decisionJob),
		done:             make(chan struct{}),
	}
	go e.run()
	return e
}

// Close stops the decision loop. In-flight Decide calls whose job was
// already accepted still complete; calls made after Close return an
// error.
func (e *Engine) Close() {
	close(e.done)
}

func (e *Engine) run() {
	for {
		select {
		case job := <-e.jobs:
			status, err := e.decide(job.ctx, job.req)
			job.reply <- decisionResult{status: status, err: err}
		case <-e.done:
			return
		}
	}
}

// Decide resolves req to an ApprovalStatus, per the ordered check in
// §4.7. It blocks until a decision is reached (which may mean waiting on
// an interactive prompt) or ctx is cancelled.
func (e *Engine) Decide(ctx context.Context, req ActionRequest) (ApprovalStatus, error) {
	reply := make(chan decisionResult, 1)

	select {
	case e.jobs <- decisionJob{ctx: ctx, req: req, reply: reply}:
	case <-e.done:
		return "", context.Canceled
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-reply:
		return res.status, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) decide(ctx context.Context, req ActionRequest) (ApprovalStatus, error) {
	if status, ok := e.checkRules(req); ok {
		return status, nil
	}

	if status, ok := e.checkSessionCache(req); ok {
		return status, nil
	}

	if status, ok := e.checkProjectCache(req); ok {
		return status, nil
	}

	status, err := e.prompter.Prompt(ctx, req)
	if err != nil {
		return "", err
	}

	e.storeApproval(req, status)
	return status, nil
}

func (e *Engine) checkRules(req ActionRequest) (ApprovalStatus, bool) {
	e.mu.RLock()
	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	hour := e.clock().Hour()
	for _, name := range names {
		rule := e.rules[name]
		if !matchesPattern(req.Type, rule.ActionPattern) {
			continue
		}
		if !matchesConditions(req, rule.Conditions, hour) {
			continue
		}
		e.mu.RUnlock()
		if rule.AutoApprove {
			return AllowedOnce, true
		}
		return Denied, true
	}
	e.mu.RUnlock()
	return "", false
}

func matchesPattern(action ActionType, pattern ActionPattern) bool {
	switch pattern.Kind {
	case MatchAll:
		return true
	case MatchType:
		return action.Kind == pattern.ActionKind
	case MatchFilePat:
		if !action.IsFileKind() {
			return false
		}
		g, err := glob.Compile(pattern.Glob)
		if err != nil {
			return false
		}
		return g.Match(action.Path)
	case MatchCmdPat:
		if action.Kind != CommandExec {
			return false
		}
		return strings.Contains(action.Command, pattern.CmdSubstr)
	default:
		return false
	}
}

func matchesConditions(req ActionRequest, conditions []RuleCondition, hour int) bool {
	for _, c := range conditions {
		switch c.Kind {
		case ProjectScope:
			if !strings.Contains(req.Context.ProjectPath, c.Scope) {
				return false
			}
		case TimeWindow:
			if hour < c.StartHour || hour > c.EndHour {
				return false
			}
		case SessionProp:
			// reserved: no session metadata is modeled, so this never
			// excludes a rule.
			continue
		}
	}
	return true
}

func (e *Engine) checkSessionCache(req ActionRequest) (ApprovalStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if status, ok := e.sessionApprovals[req.Type.Kind]; ok && status == AllowedSession {
		return AllowedSession, true
	}
	return "", false
}

func (e *Engine) checkProjectCache(req ActionRequest) (ApprovalStatus, bool) {
	if req.Context.ProjectPath == "" {
		return "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	projectMap, ok := e.projectApprovals[req.Context.ProjectPath]
	if !ok {
		return "", false
	}
	status, ok := projectMap[req.Type.Kind]
	if !ok {
		return "", false
	}
	if status == AllowedProject || status == Denied {
		return status, true
	}
	return "", false
}

// storeApproval persists a prompt decision into the matching cache.
// AllowedOnce is never persisted; AllowedSession goes to the session
// cache; AllowedProject and Denied go to the project cache (keyed by
// project path), when a project path is present.
func (e *Engine) storeApproval(req ActionRequest, status ApprovalStatus) {
	switch status {
	case AllowedSession:
		e.mu.Lock()
		e.sessionApprovals[req.Type.Kind] = status
		e.mu.Unlock()
	case AllowedProject, Denied:
		if req.Context.ProjectPath == "" {
			return
		}
		e.mu.Lock()
		projectMap, ok := e.projectApprovals[req.Context.ProjectPath]
		if !ok {
			projectMap = make(map[ActionKind]ApprovalStatus)
			e.projectApprovals[req.Context.ProjectPath] = projectMap
		}
		projectMap[req.Type.Kind] = status
		e.mu.Unlock()
	}
}

// AddRule registers or replaces a rule by name.
func (e *Engine) AddRule(rule ApprovalRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.Name] = rule
}

// RemoveRule deletes a rule by name; a no-op if it doesn't exist.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, name)
}

// ListRules returns all registered rules in an unspecified order.
func (e *Engine) ListRules() []ApprovalRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]ApprovalRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	return rules
}
