package verify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kantin/internal/domain"
	applog "kantin/internal/log"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

// generateContent request/response, trimmed to what proof checking needs.
type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var verdictJSON = regexp.MustCompile(`\{[^}]+\}`)

// Gemini asks the Gemini generateContent API to read the proof.
type Gemini struct {
	client *resty.Client
	apiKey string
	model  string
	now    func() time.Time
}

func NewGemini(baseURL, apiKey, model string, timeout time.Duration) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Gemini{client: c, apiKey: apiKey, model: model, now: time.Now}
}

func (g *Gemini) prompt(req Request) string {
	amount := domain.FormatRupiah(req.ExpectedAmount)
	var b strings.Builder
	fmt.Fprintf(&b, "Analisis bukti pembayaran ini. Total yang harus dibayar adalah %s", amount)
	if req.MerchantName != "" {
		fmt.Fprintf(&b, " kepada merchant %s", req.MerchantName)
	}
	b.WriteString(".\nPeriksa apakah:\n")
	fmt.Fprintf(&b, "1. Nominal transfer sesuai dengan %s\n", amount)
	b.WriteString("2. Status transaksi adalah SUKSES/BERHASIL\n")
	fmt.Fprintf(&b, "3. Tanggal transaksi adalah hari ini (%s)\n", g.now().Format("02-01-2006"))
	if req.MerchantName != "" {
		fmt.Fprintf(&b, "4. Penerima pembayaran adalah %s\n", req.MerchantName)
	}
	b.WriteString(`Jawab dalam format JSON: {"valid": true/false, "reason": "alasan jika tidak valid"}`)
	return b.String()
}

func (g *Gemini) Verify(ctx context.Context, req Request) Verdict {
	ctx, span := otel.Tracer("kantin/verify").Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int64("proof.expected_amount", req.ExpectedAmount),
		attribute.Int("proof.bytes", len(req.Image)),
	)

	mime := req.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	body := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: g.prompt(req)},
				{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: 0},
	}

	var out geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post("/models/" + g.model + ":generateContent")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		applog.Error(nil, "verify.gemini", err, nil)
		return reject(ReasonGatewayError)
	}
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
		applog.Error(nil, "verify.gemini", fmt.Errorf("gemini status %d", resp.StatusCode()), nil)
		return reject(ReasonGatewayError)
	}

	v, err := parseVerdict(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse")
		applog.Error(nil, "verify.gemini.parse", err, nil)
		return reject(ReasonGatewayError)
	}
	span.SetAttributes(attribute.Bool("proof.accepted", v.Accepted))
	return v
}

func parseVerdict(out geminiResponse) (Verdict, error) {
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return Verdict{}, fmt.Errorf("empty candidate")
	}
	text := out.Candidates[0].Content.Parts[0].Text
	m := verdictJSON.FindString(text)
	if m == "" {
		return Verdict{}, fmt.Errorf("no verdict object in %q", text)
	}
	var r struct {
		Valid  *bool  `json:"valid"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(m), &r); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if r.Valid == nil {
		return Verdict{}, fmt.Errorf("verdict without valid field")
	}
	if *r.Valid {
		return Verdict{Accepted: true}, nil
	}
	return reject(strings.TrimSpace(r.Reason)), nil
}
