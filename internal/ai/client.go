package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyResponse AI 返回了空内容
var ErrEmptyResponse = errors.New("ai: empty response")

const (
	DefaultEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	DefaultModel    = "qwen-plus"
)

// Client AI 辅助接口
type Client interface {
	// ParseDiagram 语义解析：规则解析失败时的兜底
	ParseDiagram(ctx context.Context, text, diagramType string) (*ParsedDiagram, error)

	// ImproveDiagram 改进图文本，返回新文本和变更说明
	ImproveDiagram(ctx context.Context, text, diagramType string) (*Improvement, error)
}

// ParsedNode AI 返回的节点
type ParsedNode struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Type       string   `json:"type"`
	Properties []string `json:"properties,omitempty"`
}

// ParsedEdge AI 返回的边
type ParsedEdge struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Label       string `json:"label"`
	MessageType string `json:"messageType,omitempty"`
	Cardinality string `json:"cardinality,omitempty"`
}

// ParsedDiagram AI 解析结果，尚未规范化
type ParsedDiagram struct {
	Nodes []ParsedNode `json:"nodes"`
	Edges []ParsedEdge `json:"edges"`
}

// Improvement 改进结果；Changes 为空表示没有实质变化
type Improvement struct {
	Text    string   `json:"text"`
	Changes []string `json:"changes"`
}

// DashScopeClient 通义千问客户端
type DashScopeClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewDashScopeClient 创建客户端，endpoint/model 为空时使用默认值
func NewDashScopeClient(apiKey, endpoint, model string) *DashScopeClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &DashScopeClient{
		apiKey:     apiKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ParseDiagram 让模型把图文本转成节点和边
func (c *DashScopeClient) ParseDiagram(ctx context.Context, text, diagramType string) (*ParsedDiagram, error) {
	prompt := fmt.Sprintf(`Extract the nodes and edges of the following %s diagram.

%s

Return JSON only:
{
  "nodes": [{"id": "identifier", "label": "display name", "type": "entity|participant|component|decision|terminal|database|node", "properties": ["int id PK"]}],
  "edges": [{"source": "node id", "target": "node id", "label": "text", "messageType": "sync|async", "cardinality": "||--o{"}]
}

Rules:
1. Only return JSON, no other text
2. Every edge must reference node ids from "nodes"
3. Keep messages in the order they appear`, diagramType, text)

	response, err := c.callAPI(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed ParsedDiagram
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("decode ai parse response: %w", err)
	}
	return &parsed, nil
}

// ImproveDiagram 让模型修复并改进图文本
func (c *DashScopeClient) ImproveDiagram(ctx context.Context, text, diagramType string) (*Improvement, error) {
	prompt := fmt.Sprintf(`Improve the following %s diagram: fix syntax errors, use clear labels, keep its meaning.

%s

Return JSON only:
{
  "text": "the complete improved diagram text",
  "changes": ["one short description per change"]
}

If nothing needs to change, return the original text and an empty "changes" list.`, diagramType, text)

	response, err := c.callAPI(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var imp Improvement
	if err := json.Unmarshal([]byte(extractJSON(response)), &imp); err != nil {
		return nil, fmt.Errorf("decode ai improve response: %w", err)
	}
	return &imp, nil
}

// callAPI 调用 DashScope 文本生成接口
func (c *DashScopeClient) callAPI(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"messages": []map[string]string{
				{
					"role":    "system",
					"content": "You are an expert in diagram markup languages such as Mermaid erDiagram, sequenceDiagram and flowchart.",
				},
				{
					"role":    "user",
					"content": prompt,
				},
			},
		},
		"parameters": map[string]interface{}{
			"result_format": "message",
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai request failed: %s, body: %s", resp.Status, string(body))
	}

	var apiResp struct {
		Output struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}

	if len(apiResp.Output.Choices) == 0 || strings.TrimSpace(apiResp.Output.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return apiResp.Output.Choices[0].Message.Content, nil
}

// extractJSON 去掉模型常带的 ``` 包裹和前后说明文字
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}
