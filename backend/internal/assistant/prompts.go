package assistant

import "fmt"

func safetyPrompt(text string) string {
	return fmt.Sprintf(`Analyze this message for harmful, inappropriate, unsafe, or educational inappropriateness.

Message: %q

You are a content filter for an educational platform. Be VERY STRICT about safety.

Mark as UNSAFE if the message contains violence, threats, weapons, sexual content,
hate speech, harassment, bullying, illegal activities, personal attacks, spam or
off-topic non-educational content.

Mark as SAFE ONLY if it is a legitimate educational question or discussion, or
appropriate classroom communication.

Respond in JSON format:
{
    "is_safe": true/false,
    "confidence": 0.0-1.0,
    "reason": "brief explanation",
    "category": "safe|violence|threats|inappropriate|sexual|hate_speech|illegal|spam|off_topic"
}`, text)
}

func doubtPrompt(text string, history []string) string {
	ctx := formatContext(history)
	if ctx == "" {
		ctx = "No recent context available"
	}
	return fmt.Sprintf(`Analyze this student message to determine if it's a genuine academic doubt that should be forwarded to the teacher.

Context from recent class discussion:
%s

Student message: %q

A GENUINE DOUBT is a specific question about the current lesson, a request for
clarification on course material, or a question about assignments or course logistics.
General knowledge questions, queries meant for the AI assistant, casual conversation
and spam are not doubts.

Respond in JSON format:
{
    "is_genuine_doubt": true/false,
    "confidence": 0.0-1.0,
    "reason": "brief explanation",
    "category": "academic_question|personal_ai_query|off_topic|spam|inappropriate"
}`, ctx, text)
}

func answerPrompt(query string, history []string) string {
	ctx := formatContext(history)
	if ctx == "" {
		ctx = "No specific lecture context available"
	}
	return fmt.Sprintf(`You are an AI teaching assistant for an educational platform. Answer the student's question helpfully and educationally.

Current class context:
%s

Student question: %s

Keep the answer to 2-4 sentences, reference the class context when it applies and
suggest asking the teacher when the question is outside the current lesson.`, ctx, query)
}

func notesPrompt(transcript string) string {
	return fmt.Sprintf(`Create study notes from this lecture:

%s

Format:
- Main Topics: [key subjects covered]
- Key Points: [important concepts with brief explanations]
- Summary: [2-3 sentence overview]

Keep under 300 words, focus on exam-relevant content.`, transcript)
}
