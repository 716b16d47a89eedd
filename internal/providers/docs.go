/*
Package providers implements the backend families served by the bridge and
the translation between the uniform chat request and each family's wire
format.

# Families

Two protocol families exist:

  - FamilyOpenAI receives the uniform request almost unmodified. Messages and
    tools are forwarded as their inbound JSON; tool_choice "auto" is added
    when tools are present. The response body is returned verbatim.
  - FamilyAnthropic receives a rebuilt Messages request. The response is
    normalized back to the uniform shape.

Router.Route picks the family from the model identifier: identifiers that
start with the vendor prefix ("claude" by default) go to FamilyAnthropic.

# Request Translation

For FamilyAnthropic the request goes through three steps:

	conv := NormalizeConversation(req.Messages) // system directive + raw turns
	msgs := MergeAlternation(conv.Messages)     // strict user/assistant alternation
	tools := ConvertTools(req.Tools)            // {name, description, input_schema}

NormalizeConversation keeps only the last system message and drops assistant
turns that carry neither text nor tool calls. Tool messages become user turns
holding one tool_result block. Tool call arguments that do not decode to a
JSON object are replaced with {}; this never fails the request.

MergeAlternation joins adjacent same-role turns (two parallel tool results,
for example) and prepends a placeholder user turn when the sequence would
otherwise open with the assistant.

# Response Translation

NormalizeResponse concatenates every text block in order, emits one tool
call per tool_use block, defaults finish_reason to "stop" and computes
total_tokens.

# Retries and Errors

Every backend call runs through Retry. Transient failures (HTTP 5xx,
including 529 overloaded) are retried exactly once after a fixed,
cancellable backoff; a second transient failure is reported as
KindRetryExhausted. Validation (400), authentication (401) and rate limit
(429) failures are reported immediately, as is any other backend status.
Transport failures become KindUnclassified. Once the caller context is done
no further attempt is made and the error kind is KindCanceled.

All failures are *Error values; use errors.As to classify them.

# Backend Capabilities

Providers depend on MessagesAPI and ChatCompletionsAPI rather than on
concrete clients, so tests substitute fakes. AnthropicClient and
OpenAIClient are the HTTP implementations; both accept gzip and brotli
encoded responses.
*/
package providers
