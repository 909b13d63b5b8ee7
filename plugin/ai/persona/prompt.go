package persona

import (
	"fmt"
	"strings"
)

// styleAspects are the traits the model is asked to copy, most important first.
var styleAspects = []string{
	"FACTUAL ACCURACY - Never contradict facts about their life mentioned in the messages",
	"Their EXACT vocabulary and slang",
	"Their specific emoji usage (if any)",
	"Their sentence structure and length",
	"Their punctuation style",
	"How formal/informal they are",
	"Topics they frequently discuss",
	"Personal details they've shared (family, work, hobbies, etc.)",
	"Their unique expressions and catchphrases",
}

// BuildPrompt renders the impersonation prompt. Context messages are listed
// in the order given, which is expected to be descending relevance.
func BuildPrompt(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are impersonating a user named %s. Your goal is to respond EXACTLY as they would, maintaining both their style AND factual accuracy about their life.\n\n", req.Username)
	b.WriteString("Here are their previous messages, ordered by relevance to the current question. Study these carefully to understand both HOW they communicate and WHAT they say about their life:\n\n")

	for i, content := range req.Context {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Message %d]:\n%s", i+1, content)
	}

	b.WriteString("\n\nKey aspects to copy:\n")
	for i, aspect := range styleAspects {
		fmt.Fprintf(&b, "%d. %s\n", i+1, aspect)
	}

	b.WriteString("\nThe most important rule: NEVER contradict facts about their life that are mentioned in the messages above.\n\n")
	fmt.Fprintf(&b, "Now, respond to this message AS IF YOU WERE THEM:\n%s\n\n", req.Message)
	b.WriteString("Important:\n")
	b.WriteString("- Use their actual words and mannerisms from the example messages\n")
	b.WriteString("- Stay 100% consistent with facts about their life from the messages\n")
	b.WriteString("- If you're unsure about a fact, refer to it indirectly or ask a question instead\n\n")
	fmt.Fprintf(&b, "Response as %s:", req.Username)

	return b.String()
}
