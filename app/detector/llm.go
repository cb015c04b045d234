package detector

import (
	"context"
	"fmt"
	"log"
	"strings"

	tokenizer "github.com/sandwich-go/gpt3-encoder"
	"github.com/sashabaranov/go-openai"
)

// openAIClient is a subset of the OpenAI client used by LLMChecker
type openAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMConfig contains parameters for LLMChecker
type LLMConfig struct {
	Model             string
	SystemPrompt      string
	MaxTokensResponse int // hard limit for the number of tokens in the response
	MaxTokensRequest  int // max request length in tokens
	MaxSymbolsRequest int // fallback max request length in symbols, if tokenizer failed
}

// llmPrompt instructs the model to answer strictly with 1 (spam) or 0.
// The moderated group is russian-speaking, so are the spam characteristics.
const llmPrompt = `Вы - система определения спама в чатах Telegram. Ваша задача - анализировать сообщения и определять, являются ли они спамом.

Характеристики спам-сообщений:
1. Предложения быстрого заработка с нереалистично высокими суммами.
2. Призывы к действию типа 'пишите в личные сообщения', 'ограниченное предложение'.
3. Намеренные орфографические ошибки или замена букв символами (например, 'сOoбщение' вместо 'сообщение').
4. Неконкретные предложения работы без деталей.
5. Обещания легкого заработка, 'свободного графика' без объяснения сути работы.
6. Использование эмодзи или необычных символов для привлечения внимания.
7. Отсутствие контекста или связи с предыдущими сообщениями в чате.

Отвечайте только '1', если сообщение соответствует характеристикам спама, или '0', если это обычное сообщение. Не добавляйте никаких дополнительных комментариев или объяснений.`

// LLMChecker asks an OpenAI model whether a message is spam. Any API or
// parsing failure reports FlagUnknown, an unreachable model never counts
// as a spam signal.
type LLMChecker struct {
	client openAIClient
	params LLMConfig
}

// NewLLMChecker makes a checker with the given client, nil client makes
// every check report unknown.
func NewLLMChecker(client openAIClient, params LLMConfig) *LLMChecker {
	if params.SystemPrompt == "" {
		params.SystemPrompt = llmPrompt
	}
	if params.Model == "" {
		params.Model = openai.GPT4oMini
	}
	if params.MaxTokensResponse == 0 {
		params.MaxTokensResponse = 16
	}
	if params.MaxTokensRequest == 0 {
		params.MaxTokensRequest = 3000
	}
	if params.MaxSymbolsRequest == 0 {
		params.MaxSymbolsRequest = 12000
	}
	return &LLMChecker{client: client, params: params}
}

// Check asks the model about the text and maps the answer to a Flag
func (l *LLMChecker) Check(ctx context.Context, text string) Flag {
	if l.client == nil {
		return FlagUnknown
	}

	req := openai.ChatCompletionRequest{
		Model:     l.params.Model,
		MaxTokens: l.params.MaxTokensResponse,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: l.params.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: l.reduceRequest(text)},
		},
	}
	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Printf("[WARN] llm check failed: %v", err)
		return FlagUnknown
	}
	if len(resp.Choices) == 0 {
		log.Printf("[WARN] llm check returned no choices")
		return FlagUnknown
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if strings.Contains(answer, "1") {
		return FlagBanned
	}
	return FlagClean
}

// reduceRequest trims the text to fit the model's context window, with a
// tokenizer-based cut and a symbol-count fallback if tokenization fails
func (l *LLMChecker) reduceRequest(text string) string {
	defaultReducer := func(text string) string {
		if len(text) <= l.params.MaxSymbolsRequest {
			return text
		}
		return text[:l.params.MaxSymbolsRequest]
	}

	encoder, err := tokenizer.NewEncoder()
	if err != nil {
		return defaultReducer(text)
	}
	tokens, err := encoder.Encode(text)
	if err != nil {
		return defaultReducer(text)
	}
	if len(tokens) <= l.params.MaxTokensRequest {
		return text
	}
	return encoder.Decode(tokens[:l.params.MaxTokensRequest])
}

// String describes checker configuration for logging
func (l *LLMChecker) String() string {
	return fmt.Sprintf("llm checker with model %s", l.params.Model)
}
