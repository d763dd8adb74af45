package ace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// ExecutionFeedback carries the outside world's verdict on a
// generation back into the reflection phase.
type ExecutionFeedback struct {
	Error            string            `json:"error,omitempty"`
	Issues           map[string]string `json:"issues,omitempty"`
	ProblematicItems []string          `json:"problematic_items,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
}

// Reflector analyzes a generation trace plus execution feedback and
// distills lessons into delta updates for the Curator. Successful runs
// yield success-pattern insights (confidence 0.8), failed runs yield
// failure lessons (confidence 0.6), and items the feedback flags as
// problematic get refinement deltas targeted at them.
type Reflector struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	generate GenerateFunc
	id       string
}

// NewReflector creates a reflector. Nil manual or index get fresh
// instances; generate may be nil for offline use.
func NewReflector(manual *EvolvingManual, metadata *MetadataIndex, generate GenerateFunc) *Reflector {
	if manual == nil {
		manual = NewEvolvingManual("")
	}
	if metadata == nil {
		metadata = NewMetadataIndex()
	}
	return &Reflector{
		manual:   manual,
		metadata: metadata,
		generate: generate,
		id:       "reflector_" + uuid.New().String()[:8],
	}
}

// Reflect turns a generation outcome into delta updates. Every item
// the generation drew on gets its reflection recorded, whether or not
// the pass produced insights.
func (r *Reflector) Reflect(ctx context.Context, result *GenerationResult, feedback *ExecutionFeedback, success bool) ([]*DeltaUpdate, error) {
	if err := errors.CheckContext(ctx, "reflect"); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New(errors.InvalidInput, "nil generation result")
	}

	task := ""
	if result.Trace != nil {
		task = result.Trace.Task
	}

	var insights []*DeltaUpdate

	switch {
	case success && feedback != nil:
		content, err := r.successPattern(ctx, task, result.Response, result.Reasoning, feedback)
		if err != nil {
			return nil, err
		}
		if content != "" {
			insights = append(insights, NewDeltaUpdate(ActionAdd, ItemTypeInsight, content,
				WithSources(result.UsedItems...),
				WithCreator("Reflector"),
				WithConfidence(0.8),
				WithDeltaTags("success_pattern", "reflection"),
			))
		}
	case !success:
		content, err := r.failureLesson(ctx, task, result.Response, result.Reasoning, feedback)
		if err != nil {
			return nil, err
		}
		if content != "" {
			insights = append(insights, NewDeltaUpdate(ActionAdd, ItemTypeInsight, content,
				WithSources(result.UsedItems...),
				WithCreator("Reflector"),
				WithConfidence(0.6),
				WithDeltaTags("failure_lesson", "reflection"),
			))
		}
	}

	insights = append(insights, r.identifyRefinements(result.UsedItems, feedback)...)

	for _, itemID := range result.UsedItems {
		if md, ok := r.metadata.Get(itemID); ok {
			md.RecordReflection()
		}
	}

	logging.GetLogger().Debug(ctx, "%s produced %d insights (success=%v)", r.id, len(insights), success)
	return insights, nil
}

func (r *Reflector) successPattern(ctx context.Context, task, response, reasoning string, feedback *ExecutionFeedback) (string, error) {
	if r.generate == nil {
		return fmt.Sprintf("Successful pattern identified for task type: %s", truncate(task, 50)), nil
	}
	prompt := fmt.Sprintf(`Analyze this successful execution and extract reusable patterns:

Task: %s
Response: %s
Reasoning: %s
Feedback: %+v

Extract 1-2 actionable insights that can be applied to similar tasks.`,
		task, truncate(response, 500), truncate(reasoning, 500), feedback)
	out, err := r.generate(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, errors.GenerationFailed, "success pattern extraction failed")
	}
	return out, nil
}

func (r *Reflector) failureLesson(ctx context.Context, task, response, reasoning string, feedback *ExecutionFeedback) (string, error) {
	if r.generate == nil {
		errMsg := "Unknown error"
		if feedback != nil && feedback.Error != "" {
			errMsg = feedback.Error
		}
		return "Failure lesson: " + errMsg, nil
	}
	feedbackDesc := "No feedback provided"
	if feedback != nil {
		feedbackDesc = fmt.Sprintf("%+v", feedback)
	}
	prompt := fmt.Sprintf(`Analyze this failed execution and extract lessons:

Task: %s
Response: %s
Reasoning: %s
Feedback: %s

Extract 1-2 key lessons to avoid similar failures.`,
		task, truncate(response, 500), truncate(reasoning, 500), feedbackDesc)
	out, err := r.generate(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, errors.GenerationFailed, "failure lesson extraction failed")
	}
	return out, nil
}

// identifyRefinements turns per-item issues from the feedback into
// refinement deltas aimed at the flagged items.
func (r *Reflector) identifyRefinements(usedItems []string, feedback *ExecutionFeedback) []*DeltaUpdate {
	if feedback == nil || len(feedback.Issues) == 0 {
		return nil
	}

	flagged := make(map[string]struct{}, len(feedback.ProblematicItems))
	for _, id := range feedback.ProblematicItems {
		flagged[id] = struct{}{}
	}

	var refinements []*DeltaUpdate
	for _, itemID := range usedItems {
		if _, ok := flagged[itemID]; !ok {
			continue
		}
		item, ok := r.manual.GetItem(itemID)
		if !ok || item.Metadata == nil {
			continue
		}
		issue, ok := feedback.Issues[itemID]
		if !ok {
			issue = "General refinement"
		}
		refinements = append(refinements, NewDeltaUpdate(ActionUpdate, ItemTypeRefinement,
			"Refinement needed: "+issue,
			WithTarget(itemID),
			WithCreator("Reflector"),
			WithConfidence(0.7),
			WithDeltaTags("refinement", "quality_improvement"),
		))
	}
	return refinements
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
