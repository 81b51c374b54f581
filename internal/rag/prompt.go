package rag

import "strings"

const (
	AnswerNotPresent     = "Answer is not present in the PDF."
	AnswerNotProcessed   = "PDF not processed yet."
	AnswerInvalidSession = "Invalid session."
)

const promptTemplate = `You are ChatPDF AI.

Use ONLY the provided context.

Rules:
1. If answer is in context → answer normally.
2. If partly present → explain using context only.
3. If not present → say exactly:
   "` + AnswerNotPresent + `"
4. Do NOT use outside knowledge.
5. Keep answers short.

Context:
{{context}}

Question:
{{question}}

Answer:
`

// BuildPrompt fills the grounded-answer template.
func BuildPrompt(context, question string) string {
	return strings.NewReplacer("{{context}}", context, "{{question}}", question).Replace(promptTemplate)
}
