package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// OllamaModel talks to a local Ollama server over /api/chat.
type OllamaModel struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

var _ model.BaseChatModel = (*OllamaModel)(nil)

func NewOllamaModel(baseURL, modelName string) *OllamaModel {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3:latest"
	}
	return &OllamaModel{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   modelName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func NewOllamaFactory(baseURL string) ModelFactory {
	return func(_ context.Context, modelName string) (model.BaseChatModel, error) {
		return NewOllamaModel(baseURL, modelName), nil
	}
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaMsg struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

// toOllamaMessages flattens multi-part content: text parts are joined,
// images are passed as raw base64 and audio is not supported by Ollama.
func toOllamaMessages(in []*schema.Message) []ollamaMsg {
	out := make([]ollamaMsg, 0, len(in))
	for _, m := range in {
		om := ollamaMsg{Role: string(m.Role)}
		var text []string
		if m.Content != "" {
			text = append(text, m.Content)
		}
		for _, p := range m.MultiContent {
			switch p.Type {
			case schema.ChatMessagePartTypeText:
				text = append(text, p.Text)
			case schema.ChatMessagePartTypeImageURL:
				if p.ImageURL != nil {
					om.Images = append(om.Images, stripDataURI(p.ImageURL.URL))
				}
			case schema.ChatMessagePartTypeAudioURL:
				text = append(text, "[audio attachment omitted]")
			}
		}
		om.Content = strings.Join(text, "\n")
		out = append(out, om)
	}
	return out
}

func stripDataURI(u string) string {
	if strings.HasPrefix(u, "data:") {
		if i := strings.Index(u, ","); i >= 0 {
			return u[i+1:]
		}
	}
	return u
}

func (m *OllamaModel) newRequest(ctx context.Context, input []*schema.Message, stream bool, opts []model.Option) (*http.Request, error) {
	if m.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}
	common := model.GetCommonOptions(&model.Options{Model: &m.Model}, opts...)
	body := ollamaChatReq{
		Model:    m.Model,
		Messages: toOllamaMessages(input),
		Stream:   stream,
	}
	if common.Model != nil && *common.Model != "" {
		body.Model = *common.Model
	}
	if common.Temperature != nil {
		body.Options = map[string]any{"temperature": *common.Temperature}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (m *OllamaModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.newRequest(ctx, input, false, opts)
	if err != nil {
		return nil, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != "" {
		return nil, errors.New(decoded.Error)
	}
	return schema.AssistantMessage(decoded.Message.Content, nil), nil
}

// Stream returns assistant chunks as they arrive. The reader ends with the
// first error or when Ollama reports done.
func (m *OllamaModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.newRequest(ctx, input, true, opts)
	if err != nil {
		return nil, err
	}
	// streaming can outlive the client timeout; ctx bounds it instead
	client := *m.Client
	client.Timeout = 0

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				sw.Send(nil, err)
				return
			}
			if decoded.Error != "" {
				sw.Send(nil, errors.New(decoded.Error))
				return
			}
			if decoded.Message.Content != "" {
				if closed := sw.Send(schema.AssistantMessage(decoded.Message.Content, nil), nil); closed {
					return
				}
			}
			if decoded.Done {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}
