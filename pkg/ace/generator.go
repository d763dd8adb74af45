package ace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// GenerateFunc is the single model capability the agents depend on. It
// takes a prompt and returns the model's text. Implementations live
// outside this package (see pkg/llm for an Anthropic-backed one); tests
// inject stubs. A nil GenerateFunc makes every agent fall back to its
// deterministic offline behavior.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// GenerationResult is the structured outcome of one generation pass.
type GenerationResult struct {
	Response            string           `json:"response"`
	Reasoning           string           `json:"reasoning"`
	UsedItems           []string         `json:"used_items"`
	Trace               *GenerationTrace `json:"trace"`
	ManualContextLength int              `json:"manual_context_length"`
}

// GenerationTrace records what went into a generation pass; the
// Reflector consumes it.
type GenerationTrace struct {
	Task             string    `json:"task"`
	ContextUsed      bool      `json:"context_used"`
	ManualItemsCount int       `json:"manual_items_count"`
	GeneratorID      string    `json:"generator_id"`
	Timestamp        time.Time `json:"timestamp"`
}

// GenerateOptions controls a single generation pass.
type GenerateOptions struct {
	Context        string
	UseManual      bool
	MaxManualItems int
}

// Generator produces responses for tasks, guided by the manual's
// accumulated context. Every pass records usage on the items it drew
// on so prioritization improves over time.
type Generator struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	generate GenerateFunc
	id       string
}

// NewGenerator creates a generator over the given manual and metadata
// index. Nil manual or index get fresh instances; generate may be nil
// for offline use.
func NewGenerator(manual *EvolvingManual, metadata *MetadataIndex, generate GenerateFunc) *Generator {
	if manual == nil {
		manual = NewEvolvingManual("")
	}
	if metadata == nil {
		metadata = NewMetadataIndex()
	}
	return &Generator{
		manual:   manual,
		metadata: metadata,
		generate: generate,
		id:       "generator_" + uuid.New().String()[:8],
	}
}

// Generate produces a response for task, prepending the manual's
// context to the prompt when opts.UseManual is set. Items that
// contributed context get their usage recorded.
func (g *Generator) Generate(ctx context.Context, task string, opts GenerateOptions) (*GenerationResult, error) {
	if err := errors.CheckContext(ctx, "generate"); err != nil {
		return nil, err
	}

	var manualContext string
	var usedItems []string

	if opts.UseManual {
		active := g.manual.GetActiveItems()
		if opts.MaxManualItems > 0 {
			sort.SliceStable(active, func(i, j int) bool {
				ci, cj := confidenceOf(active[i]), confidenceOf(active[j])
				if ci != cj {
					return ci > cj
				}
				return usageOf(active[i]) > usageOf(active[j])
			})
			if len(active) > opts.MaxManualItems {
				active = active[:opts.MaxManualItems]
			}
		}

		manualContext = g.manual.ToContextString(0, PrioritizeByUsage)
		usedItems = make([]string, 0, len(active))
		for _, item := range active {
			usedItems = append(usedItems, item.ItemID)
			if item.Metadata != nil {
				item.Metadata.RecordUsage()
			}
		}
	}

	fullContext := manualContext
	if opts.Context != "" {
		if fullContext != "" {
			fullContext += "\n\n"
		}
		fullContext += opts.Context
	}

	response, err := g.callModel(ctx, task, fullContext)
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "generation failed")
	}

	logging.GetLogger().Debug(ctx, "%s generated response for task using %d manual items", g.id, len(usedItems))

	return &GenerationResult{
		Response:  response,
		Reasoning: extractReasoning(response),
		UsedItems: usedItems,
		Trace: &GenerationTrace{
			Task:             task,
			ContextUsed:      manualContext != "",
			ManualItemsCount: len(usedItems),
			GeneratorID:      g.id,
			Timestamp:        time.Now(),
		},
		ManualContextLength: len(manualContext),
	}, nil
}

func (g *Generator) callModel(ctx context.Context, task, context string) (string, error) {
	if g.generate == nil {
		return "Generated response for: " + task, nil
	}
	prompt := task
	if context != "" {
		prompt = fmt.Sprintf("%s\n\nTask: %s", context, task)
	}
	return g.generate(ctx, prompt)
}

// extractReasoning pulls the reasoning lines out of a response, falling
// back to a 500-char prefix when the response has no marked reasoning.
func extractReasoning(response string) string {
	lower := strings.ToLower(response)
	if strings.Contains(lower, "reasoning:") || strings.Contains(lower, "thought:") {
		var reasoning []string
		for _, line := range strings.Split(response, "\n") {
			ll := strings.ToLower(line)
			if strings.Contains(ll, "reasoning:") || strings.Contains(ll, "thought:") {
				reasoning = append(reasoning, line)
			}
		}
		return strings.Join(reasoning, "\n")
	}
	if len(response) > 500 {
		return response[:500]
	}
	return response
}

// CreateManualItem captures an insight produced during generation as a
// new manual item and returns its id.
func (g *Generator) CreateManualItem(content string, itemType ItemType, tags ...string) string {
	item := NewManualItem(content, itemType)

	md := NewMetadata(item.ItemID, itemType, "Generator")
	md.Tags = append([]string(nil), tags...)
	md.ConfidenceScore = 0.7
	md.ContextLength = item.EstimateTokens()

	g.metadata.Add(md)
	g.manual.AddItem(item, md)
	return item.ItemID
}
