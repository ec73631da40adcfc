package teacher

import (
	"fmt"
	"strings"
)

const questionSystemPrompt = `You are an experienced teacher writing quiz questions for a small language model.
Reply with a single JSON object of the form:
{"questions": [{"question": "...", "expected_answer": "...", "topic": "...", "difficulty": "easy|medium|hard"}]}
Keep each question self-contained and answerable in a few sentences. Do not add any text outside the JSON.`

const evaluationSystemPrompt = `You are a strict but fair teacher grading a student's answer.
Reply with a single JSON object of the form:
{"is_correct": true|false, "score": 0.0-1.0, "feedback": "...", "correct_answer": "...", "improvement_areas": ["..."]}
The feedback must explain what was wrong and how to fix it. Do not add any text outside the JSON.`

func questionPrompt(count int, topic, difficulty string) string {
	return fmt.Sprintf("Write %d distinct %s questions about %s.", count, difficulty, topic)
}

func evaluationPrompt(question, expected, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	if expected != "" {
		fmt.Fprintf(&b, "Reference answer: %s\n", expected)
	}
	fmt.Fprintf(&b, "Student answer: %s\n", answer)
	b.WriteString("Grade the student answer.")
	return b.String()
}
