package qa

import "fmt"

const answerSystemPrompt = `You are a Knowledge Graph QA assistant.

Rules:
- Answer ONLY from the evidence provided below the question
- Be specific and comprehensive
- If the evidence clearly answers the question, give a detailed response
- If the evidence is weak or missing, say "I don't have enough information about that"
- Never invent facts that are not in the evidence
- When the evidence names source PDFs, cite them at the end of the answer`

const evaluatorSystemPrompt = `You are an answer quality evaluator.

Reply with EXACTLY one word: "good" or "retry".

- "good" if the answer clearly addresses the question with specific information
- "retry" if the answer is vague, says there is no information, or does not answer the question`

func answerUserPrompt(question, evidence string) string {
	return fmt.Sprintf(`Question: %s

Evidence from Knowledge Graph:
%s

Provide the best answer based on the evidence above.`, question, evidence)
}

func evaluatorUserPrompt(question, answer string, resultsCount int) string {
	return fmt.Sprintf(`Question: %s
Answer: %s
Results found: %d

Quality verdict (one word only)?`, question, answer, resultsCount)
}
