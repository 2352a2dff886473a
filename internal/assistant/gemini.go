package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
	Rate     float64
	Burst    int
}

// Gemini calls the generateContent method of the Gemini REST API.
type Gemini struct {
	cfg     GeminiConfig
	client  *fasthttp.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewGemini(cfg GeminiConfig, client *fasthttp.Client, log *slog.Logger) *Gemini {
	if client == nil {
		client = &fasthttp.Client{
			Name:                "nexus",
			MaxIdleConnDuration: time.Minute,
		}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rps := cfg.Rate
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Gemini{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete never fails; any error is logged and Fallback returned.
func (g *Gemini) Complete(ctx context.Context, prompt string, history []Turn, persona string) string {
	text, err := g.generate(ctx, prompt, history, persona)
	if err != nil {
		g.log.Error("completion failed", "model", g.cfg.Model, "error", err)
		return Fallback
	}
	return text
}

func (g *Gemini) generate(ctx context.Context, prompt string, history []Turn, persona string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", errors.New("no API key configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(buildRequest(prompt, history, persona))
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.cfg.Endpoint, "/"), g.cfg.Model))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.SetBody(body)

	deadline := time.Now().Add(g.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("request: %w", err)
	}

	var out geminiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}

	var b strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty completion")
	}
	return b.String(), nil
}

func buildRequest(prompt string, history []Turn, persona string) geminiRequest {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(history)+1),
	}
	if persona != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: persona}}}
	}
	for _, t := range history {
		req.Contents = append(req.Contents, geminiContent{Role: string(t.Role), Parts: []geminiPart{{Text: t.Text}}})
	}
	req.Contents = append(req.Contents, geminiContent{Role: string(RoleUser), Parts: []geminiPart{{Text: prompt}}})
	return req
}
