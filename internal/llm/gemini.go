package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
)

// ErrModel marks an unrecoverable model-call failure; the turn fails and the
// user sees an apologetic reply.
var ErrModel = errors.New("llm: model call failed")

// ErrImageAttachment marks failures on the image path; callers degrade to a
// text-only call rather than failing the turn.
var ErrImageAttachment = errors.New("llm: image attachment failed")

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const systemPrompt = `You are Prism, an AI assistant with the following capabilities:
1. Web Search: for factual queries, current events, or when you need to verify information
2. Image Analysis: when the user shares an image or uses their camera
3. General Conversation: questions about your capabilities or general chat

Always be concise and direct in your responses. If web search results are provided, use ONLY information from them, cite sources using [Source: URL] format, and say so when they are not relevant. If analyzing an image, describe what you see and provide relevant insights.`

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    defaultBaseURL,
	}
}

type genPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *genInlineData `json:"inline_data,omitempty"`
}

type genInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *genContent  `json:"system_instruction,omitempty"`
	Contents          []genContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []genPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate answers one turn given the replayed history, the user text, an
// optional image and optional web search context. The image rides the primary
// inline-JPEG path; on failure it is downscaled and retried once, and as a
// last resort the call proceeds text-only. Only a failure of the final
// attempt is fatal.
func (c *GeminiClient) Generate(ctx context.Context, history []conversation.Entry, text string, image []byte, searchContext string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: api key missing", ErrModel)
	}

	prompt := buildTurnPrompt(text, image != nil, searchContext)

	var attachErr error
	if len(image) > 0 {
		jpeg, mime, err := normalizeImage(image)
		if err == nil {
			reply, err := c.call(ctx, history, prompt, &genInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(jpeg)})
			if err == nil {
				return reply, nil
			}
			attachErr = err
			log.Warn().Err(err).Msg("primary image path failed, retrying downscaled")

			if small, derr := downscaleJPEG(image, 800, 600); derr == nil {
				reply, err = c.call(ctx, history, prompt, &genInlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(small)})
				if err == nil {
					return reply, nil
				}
				attachErr = err
			}
		} else {
			attachErr = err
		}
		log.Warn().Err(fmt.Errorf("%w: %v", ErrImageAttachment, attachErr)).Msg("image attachment abandoned, continuing text-only")
		prompt += "\n\n(Note: an image was provided but could not be attached; answer from the text alone and mention that the image could not be analyzed.)"
	}

	reply, err := c.call(ctx, history, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}
	return reply, nil
}

// GeneratePrompt runs a single standalone prompt with no history or image.
// Used by the search decision engine.
func (c *GeminiClient) GeneratePrompt(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: api key missing", ErrModel)
	}
	reply, err := c.call(ctx, nil, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}
	return reply, nil
}

func buildTurnPrompt(text string, hasImage bool, searchContext string) string {
	var b strings.Builder
	if hasImage {
		b.WriteString("The user has provided an image along with this message. If the message is about the image, describe the relevant aspects and answer the question; if it does not mention the image, describe its key elements and relate them to the message.\n\n")
	}
	if searchContext != "" {
		b.WriteString("Web search results:\n")
		b.WriteString(searchContext)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	return b.String()
}

func (c *GeminiClient) call(ctx context.Context, history []conversation.Entry, prompt string, image *genInlineData) (string, error) {
	contents := make([]genContent, 0, len(history)+1)
	for _, e := range history {
		role := "user"
		if e.Role == conversation.RoleAssistant {
			role = "model"
		}
		contents = append(contents, genContent{Role: role, Parts: []genPart{{Text: e.Content}}})
	}
	parts := []genPart{{Text: prompt}}
	if image != nil {
		parts = append(parts, genPart{InlineData: image})
	}
	contents = append(contents, genContent{Role: "user", Parts: parts})

	reqBody, _ := json.Marshal(generateRequest{
		SystemInstruction: &genContent{Parts: []genPart{{Text: systemPrompt}}},
		Contents:          contents,
	})

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("gemini error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", err
	}
	if gr.Error != nil {
		return "", fmt.Errorf("gemini error: %s", gr.Error.Message)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}
	var out strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return strings.TrimSpace(out.String()), nil
}
