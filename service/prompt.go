package service

import (
	"regexp"
)

const (
	AnswerTemplate = `You are a helpful assistant for company knowledge. Use the following context from company documents to answer the question.
If the context does not contain the answer, say that you could not find it in the company documents instead of guessing.

Context:
{context}

Question: {question}

Answer:`

	SummaryTemplate = `Summarize the following company document. Keep the key facts, names, figures and decisions, and leave out boilerplate.

Document:
{content}

Summary:`

	// FallbackAnswer is returned when the answer could not be produced.
	FallbackAnswer = "I apologize, but I encountered an error while processing your question. Please try again."
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// PromptAssembler fills {name} placeholders.
type PromptAssembler struct{}

func NewPromptAssembler() *PromptAssembler {
	return &PromptAssembler{}
}

// Fill replaces every placeholder that has a binding. Values are inserted
// literally and never scanned again, unknown placeholders are left as is.
func (p *PromptAssembler) Fill(template string, bindings map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := bindings[name]; ok {
			return value
		}
		return match
	})
}

// Unresolved lists the placeholder names in template with no binding, in
// order of first appearance.
func (p *PromptAssembler) Unresolved(template string, bindings map[string]string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if _, ok := bindings[name]; ok || seen[name] {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	return missing
}
