package student

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samogod/mentorloop/pkg/types"
)

const answerMarker = "Answer:"

func buildPrompt(q types.Question, corrections []types.Correction) string {
	var b strings.Builder
	if len(corrections) > 0 {
		b.WriteString("Previous mistakes to avoid:\n")
		for _, c := range corrections {
			fmt.Fprintf(&b, "- Question: %s\n  Feedback: %s\n", c.Question, c.Feedback)
			if c.CorrectAnswer != "" {
				fmt.Fprintf(&b, "  Correct answer: %s\n", c.CorrectAnswer)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n%s", q.Text, answerMarker)
	return b.String()
}

// trainingText is the sequence the student is tuned on after a mistake.
func trainingText(q types.Question, target string) string {
	return fmt.Sprintf("Question: %s\n%s %s", q.Text, answerMarker, target)
}

// cleanAnswer removes an echoed prompt, stops at the next question the model
// starts inventing and caps the length at maxChars runes.
func cleanAnswer(prompt, output string, maxChars int) string {
	answer := strings.TrimPrefix(output, prompt)
	answer = strings.TrimPrefix(strings.TrimSpace(answer), answerMarker)
	if i := strings.Index(answer, "\nQuestion:"); i >= 0 {
		answer = answer[:i]
	}
	answer = strings.TrimSpace(answer)

	if maxChars > 0 && utf8.RuneCountInString(answer) > maxChars {
		runes := []rune(answer)
		answer = strings.TrimSpace(string(runes[:maxChars]))
	}
	return answer
}
