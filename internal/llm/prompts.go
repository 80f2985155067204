package llm

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

const answerTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

// FormatHistory renders chat turns oldest first as Human/Assistant lines.
func FormatHistory(turns []models.ChatTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	return b.String()
}

// CondensePrompt builds the prompt that rewrites a follow-up into a standalone question.
func CondensePrompt(history []models.ChatTurn, question string) string {
	return fmt.Sprintf(condenseTemplate, FormatHistory(history), question)
}

// AnswerPrompt stuffs every retrieved chunk into a single answering prompt.
func AnswerPrompt(docs []models.Document, question string) string {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.PageContent
	}
	return fmt.Sprintf(answerTemplate, strings.Join(contents, "\n\n"), question)
}
