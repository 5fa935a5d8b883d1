package query

import "fmt"

// NotFoundAnswer is returned when nothing relevant was retrieved, and the
// answer prompt asks the model to reply with it when the context falls short.
const NotFoundAnswer = "I could not find an answer in the ingested content."

const contextSeparator = "\n---\n"

const rewritePrompt = "Please rephrase or enrich the following question to make it clearer and more specific for a customer assistant. " +
	"Ensure the question is well-formed, focused, and easy for an AI to understand:\n\n" +
	"Original Question: %s\n\n" +
	"Improved Question:"

const answerPrompt = `You are a helpful assistant. Answer the user's question based ONLY on the following context.
If the answer is not found in the context, say "%s"
Do not use any prior knowledge.

Context:
---
%s
---

Question: %s

Answer:`

func buildRewritePrompt(query string) string {
	return fmt.Sprintf(rewritePrompt, query)
}

func buildAnswerPrompt(contextText, question string) string {
	return fmt.Sprintf(answerPrompt, NotFoundAnswer, contextText, question)
}
