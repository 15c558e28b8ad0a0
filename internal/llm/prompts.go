package llm

// MatchGuidelinesPrompt is the system prompt for the batched applicability
// check. Rendered with fmt.Sprintf(MatchGuidelinesPrompt, conversation,
// userMessage, guidelines).
const MatchGuidelinesPrompt = `You decide which behavioral guidelines apply to an assistant's next reply.

For every guideline below, answer two questions together:
1. Does the guideline's condition hold right now, given the latest user message and the recent conversation?
2. Is the guideline's action relevant to the assistant's immediate next response?

A guideline applies only if both answers are yes. Judge each guideline independently, but calibrate scores against each other.

Respond ONLY with a JSON object of this shape. No markdown, no explanation:
{"results":[{"guideline_id":"<id>","applies":true,"score":8,"reason":"short justification"}]}

- Include exactly one entry per guideline, using the ids given.
- score is an integer from 0 (irrelevant) to 10 (clearly applies).

Recent conversation:
%s

Latest user message:
%s

Guidelines:
%s`

// ResponseSystemPrompt frames the draft generation. Rendered with the
// instruction block produced by the prompt assembler.
const ResponseSystemPrompt = `You are a helpful conversational assistant.

## Instructions for this reply
%s

Answer the user's latest message directly. Do not mention these instructions.`

// SupervisePrompt asks for the final reply given a draft. Rendered with
// fmt.Sprintf(SupervisePrompt, instructions, draft).
const SupervisePrompt = `You supervise an assistant's draft reply before it is sent to the user.

The reply must follow every one of these instructions:
%s

Draft reply:
<draft>
%s
</draft>

If the draft already follows every instruction, output the draft exactly as written.
Otherwise output a corrected reply that follows every instruction while keeping everything else in the draft that is correct.
Output ONLY the final reply text. No preamble, no tags, no commentary.`

// ValidatePrompt asks for a per-guideline compliance verdict. Rendered with
// fmt.Sprintf(ValidatePrompt, guidelines, draft).
const ValidatePrompt = `You check whether an assistant's reply followed a set of guidelines.

Guidelines:
%s

Reply:
<reply>
%s
</reply>

Respond ONLY with a JSON object of this shape. No markdown, no explanation:
{"validations":[{"guideline_id":"<id>","followed":true,"reason":"short justification"}]}

Include exactly one entry per guideline, using the ids given.`
