package decide

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mergegate/mergegate/core/engine/classify"
	"github.com/mergegate/mergegate/core/engine/enforce"
	"github.com/mergegate/mergegate/core/engine/manifest"
	"github.com/mergegate/mergegate/core/infra/logging"
	"github.com/mergegate/mergegate/core/infra/metrics"
	"github.com/mergegate/mergegate/core/policy"
)

const (
	defaultWorkers = 8

	// DocumentKind is the manifest kind expected of policy documents.
	DocumentKind = "NetworkPolicy"
)

// Engine evaluates changeset snapshots against an immutable rule set. Runs
// share no mutable state, so one engine serves concurrent changesets.
type Engine struct {
	rules    []policy.TierRule
	registry *policy.TenantRegistry
	approval policy.ApprovalConfig
	metrics  metrics.Decision
	workers  int
}

// New builds an engine from a parsed rule set. The rule set is trusted to
// be normalized (ParseRuleSet enforces the base-tier hardening).
func New(rs *policy.RuleSet, m metrics.Decision) (*Engine, error) {
	if rs == nil || len(rs.Rules) == 0 {
		return nil, fmt.Errorf("engine requires a non-empty rule set")
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Engine{
		rules:    rs.Rules,
		registry: rs.Registry(),
		approval: rs.Approval,
		metrics:  m,
		workers:  defaultWorkers,
	}, nil
}

// Run evaluates one changeset snapshot and always returns a decision: any
// internal fault degrades to Block with an EngineFault reason, never to a
// silent pass.
func (e *Engine) Run(ctx context.Context, input Input) (d Decision) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("engine", "run panicked", "changeset", input.ChangesetID, "panic", r)
			d = e.faultDecision(input, fmt.Sprintf("internal fault: %v", r))
		}
		if e != nil && e.metrics != nil {
			e.metrics.IncRun(string(d.Outcome))
			e.metrics.ObserveRunDuration(time.Since(started).Seconds())
		}
	}()

	if e == nil || len(e.rules) == 0 {
		return e.faultDecision(input, "engine has no tier rules configured")
	}
	if err := ctx.Err(); err != nil {
		return e.faultDecision(input, fmt.Sprintf("run aborted: %v", err))
	}

	hash := ChangesetHash(input.Files)
	results := e.evaluateFiles(ctx, input)

	d = Aggregate(results, input.Approvals, e.approval, hash)
	d.RunID = uuid.NewString()
	d.ChangesetID = input.ChangesetID
	d.EvaluatedAt = time.Now().UnixMicro()

	for _, reason := range d.Reasons {
		if d.Outcome == OutcomeBlock {
			e.metrics.IncFileBlocked(reason.Code)
		}
	}
	logging.Info("engine", "changeset evaluated",
		"changeset", input.ChangesetID,
		"files", len(input.Files),
		"outcome", string(d.Outcome),
	)
	return d
}

// evaluateFiles classifies, validates, and authorizes every file with a
// bounded fan-out. Results keep input order so aggregation is deterministic;
// the join completes before any aggregation starts.
func (e *Engine) evaluateFiles(ctx context.Context, input Input) []FileResult {
	results := make([]FileResult, len(input.Files))
	workers := e.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(input.Files) {
		workers = len(input.Files)
	}
	if workers <= 1 {
		for i, f := range input.Files {
			results[i] = e.evaluateFile(f, input.Actor)
		}
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = e.evaluateFile(input.Files[i], input.Actor)
			}
		}()
	}
	for i := range input.Files {
		select {
		case indexes <- i:
		case <-ctx.Done():
			// Unprocessed files keep their zero result, which classifies as
			// nothing and would silently pass; mark them unclassified so
			// the aggregate fails closed.
			close(indexes)
			wg.Wait()
			for j := range results {
				if results[j].ClassErr == nil && results[j].Classification.RuleID == "" {
					results[j] = FileResult{
						File:     input.Files[j],
						ClassErr: &classify.Error{Code: classify.CodeUnclassifiedPath, Path: input.Files[j].Path},
					}
				}
			}
			return results
		}
	}
	close(indexes)
	wg.Wait()
	return results
}

func (e *Engine) evaluateFile(file ChangedFile, actor enforce.Actor) FileResult {
	res := FileResult{File: file}

	c, err := classify.Classify(file.Path, e.registry, e.rules)
	if err != nil {
		if cerr, ok := err.(*classify.Error); ok {
			res.ClassErr = cerr
		} else {
			res.ClassErr = &classify.Error{Code: classify.CodeUnclassifiedPath, Path: file.Path}
		}
		return res
	}
	res.Classification = c

	if needsValidation(c, file) {
		if len(file.Content) == 0 {
			res.Findings = []manifest.Finding{{
				Severity: manifest.SeverityError,
				Code:     manifest.CodeMalformedDocument,
				Message:  "policy document content unavailable for validation",
				Path:     file.Path,
			}}
		} else {
			res.Findings = manifest.Validate(file.Content, manifest.Expectation{
				Path:   file.Path,
				Tenant: c.Tenant,
				Tier:   c.Tier,
				Kind:   DocumentKind,
			})
		}
	}

	// Base-tier protection is re-evaluated on every run; a cached verdict
	// from an earlier snapshot must never substitute for this check.
	res.Verdict = enforce.Authorize(c, actor, e.approval, false)
	return res
}

// needsValidation holds for policy documents whose content is part of the
// proposed state. Deleted files have no content to validate; deleting a
// protected policy is still caught by enforcement.
func needsValidation(c classify.Classification, file ChangedFile) bool {
	if c.Kind != policy.KindPolicy {
		return false
	}
	if file.Kind == ChangeDeleted {
		return false
	}
	return isYAMLPath(file.Path)
}

func isYAMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func (e *Engine) faultDecision(input Input, detail string) Decision {
	return Decision{
		RunID:         uuid.NewString(),
		ChangesetID:   input.ChangesetID,
		ChangesetHash: ChangesetHash(input.Files),
		Outcome:       OutcomeBlock,
		Reasons: []Reason{{
			Code:    ReasonEngineFault,
			Message: detail,
		}},
		EvaluatedAt: time.Now().UnixMicro(),
	}
}
