package ai

import (
	"fmt"
	"strings"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/modfin/bellman/models"
	"github.com/modfin/bellman/prompt"
	"github.com/modfin/henry/slicez"
)

// Answer is the structured output requested from the generation model.
type Answer struct {
	Answer          string          `json:"answer,omitempty" json-description:"The answer to the gardening question"`
	ConfidenceScore float32         `json:"confidence_score,omitempty" json-minimum:"0.0" json-maximum:"1.0" json-description:"a confidence score between [0.0, 1.0] that denotes how well the provided plant facts support the answer"`
	Metadata        models.Metadata `json:"-"`
}

const DefaultSystemPrompt = `You are GreenThumb, a gardening assistant. Answer the user question using the plant facts provided. ` +
	`If the facts do not cover the question, say so and answer from general horticultural knowledge, with a low confidence score.`

// factPrompts renders each retrieved fragment as a user prompt, most similar
// first.
func factPrompts(fragments []rag.ScoredFragment) []prompt.Prompt {
	return slicez.Map(fragments, func(f rag.ScoredFragment) prompt.Prompt {
		return prompt.Prompt{
			Role: prompt.UserRole,
			Text: fmt.Sprintf("<plant-fact similarity=\"%.3f\"> %s </plant-fact>", f.Similarity, f.Content),
		}
	})
}

func questionPrompt(question string) prompt.Prompt {
	return prompt.Prompt{
		Role: prompt.UserRole,
		Text: fmt.Sprintf("<user-question> %s </user-question>", strings.TrimSpace(question)),
	}
}
