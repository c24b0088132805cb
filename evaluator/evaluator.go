// Package evaluator calls an LLM judge to produce a verdict for one answered
// question. The orchestrator treats the client as a black box: any error is a
// failed task, any returned result is recorded as-is.
package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getpup/evalrun"
)

// Request is one evaluation task: a judge applied to one answered question.
type Request struct {
	Judge    evalrun.Judge
	Question evalrun.QuestionAnswer
	Include  IncludedFields
}

// Result is the judge's parsed verdict.
type Result struct {
	Verdict   evalrun.Verdict
	Reasoning string
}

// Client evaluates one request. Implementations must be safe for
// concurrent use.
type Client interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// IncludedFields controls which parts of the question answer are shown to
// the judge.
type IncludedFields struct {
	QuestionText    bool `json:"questionText"`
	AnswerChoice    bool `json:"answerChoice"`
	AnswerReasoning bool `json:"answerReasoning"`
	Metadata        bool `json:"metadata"`
}

// DefaultIncludedFields shows the question, the chosen answer, and the
// answer's reasoning. Metadata stays hidden unless asked for.
func DefaultIncludedFields() IncludedFields {
	return IncludedFields{QuestionText: true, AnswerChoice: true, AnswerReasoning: true}
}

// AllIncludedFields shows everything, metadata included.
func AllIncludedFields() IncludedFields {
	return IncludedFields{QuestionText: true, AnswerChoice: true, AnswerReasoning: true, Metadata: true}
}

// BuildSystemPrompt combines the judge's rubric with the response contract.
// The judge is instructed to answer in JSON so the reply can be parsed
// mechanically.
func BuildSystemPrompt(judge evalrun.Judge) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(judge.SystemPrompt))
	b.WriteString("\n\n")
	b.WriteString("You must respond with a JSON object containing exactly two fields:\n")
	b.WriteString(`  "verdict": one of "PASS", "FAIL", or "INCONCLUSIVE"` + "\n")
	b.WriteString(`  "reasoning": a brief explanation of your verdict` + "\n")
	b.WriteString("Respond with the JSON object only, no other text.")
	return b.String()
}

// BuildUserPrompt renders the question answer for the judge, showing only
// the fields the request includes.
func BuildUserPrompt(q evalrun.QuestionAnswer, include IncludedFields) string {
	var b strings.Builder
	b.WriteString("Evaluate the following answer.\n")

	if include.QuestionText {
		fmt.Fprintf(&b, "\nQuestion: %s\n", q.QuestionText)
	}
	if include.AnswerChoice {
		fmt.Fprintf(&b, "\nAnswer: %s\n", q.AnswerChoice)
	}
	if include.AnswerReasoning {
		fmt.Fprintf(&b, "\nAnswer reasoning: %s\n", q.AnswerReasoning)
	}
	if include.Metadata && len(q.Metadata) > 0 {
		b.WriteString("\nMetadata:\n")
		keys := make([]string, 0, len(q.Metadata))
		for k := range q.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, q.Metadata[k])
		}
	}
	return b.String()
}
