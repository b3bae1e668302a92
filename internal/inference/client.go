// Package inference holds the HTTP clients for the GPU-backed inference
// endpoints (LID, denoise, IVR strip, STT) and the LLM services. Requests
// carry the audio file name; responses are small JSON documents. Timeouts
// are stage-dependent and generous because the backends queue on the GPU.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FileRequest is the common request body for per-file inference calls.
type FileRequest struct {
	FileName string `json:"file_name"`
	BatchID  uint   `json:"batch_id,omitempty"`
}

// LanguageResult is the LID response.
type LanguageResult struct {
	FileName   string  `json:"file_name"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// FileResult is the denoise / IVR-strip response: the processed file path.
type FileResult struct {
	FileName string `json:"file_name"`
	Output   string `json:"output"`
}

// Segment is one STT transcript segment.
type Segment struct {
	Seq      int     `json:"seq"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	Language string  `json:"language"`
}

// Transcript is the STT response for one call.
type Transcript struct {
	FileName string    `json:"file_name"`
	Segments []Segment `json:"segments"`
}

// Mention is one extracted stock mention from the LLM extraction endpoint.
type Mention struct {
	ScriptName  string  `json:"script_name"`
	LotQuantity float64 `json:"lot_quantity"`
	TradePrice  float64 `json:"trade_price"`
	StrikePrice float64 `json:"strike_price"`
	Side        string  `json:"side"`
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// STTClient transcribes audio files.
type STTClient struct {
	url        string
	httpClient *http.Client
}

// NewSTTClient builds a client for the STT endpoint.
func NewSTTClient(url string) *STTClient {
	return &STTClient{url: url, httpClient: &http.Client{Timeout: 5 * time.Minute}}
}

// Transcribe runs STT for one audio file.
func (c *STTClient) Transcribe(ctx context.Context, fileName string) (*Transcript, error) {
	var out Transcript
	if err := postJSON(ctx, c.httpClient, c.url, FileRequest{FileName: fileName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LLMClient drives the extraction, audit-answering and translation endpoints.
type LLMClient struct {
	extractURL   string
	translateURL string
	httpClient   *http.Client
}

// NewLLMClient builds a client for the LLM endpoints.
func NewLLMClient(extractURL, translateURL string) *LLMClient {
	return &LLMClient{
		extractURL:   extractURL,
		translateURL: translateURL,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// ExtractInformation pulls structured stock mentions out of a transcript.
func (c *LLMClient) ExtractInformation(ctx context.Context, transcript string) ([]Mention, error) {
	var out struct {
		Mentions []Mention `json:"mentions"`
	}
	in := map[string]string{"transcript": transcript}
	if err := postJSON(ctx, c.httpClient, c.extractURL+"/extract_information", in, &out); err != nil {
		return nil, err
	}
	return out.Mentions, nil
}

// AnswerQuestion answers one audit-form question against a transcript.
func (c *LLMClient) AnswerQuestion(ctx context.Context, transcript, question string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	in := map[string]string{"transcript": transcript, "question": question}
	if err := postJSON(ctx, c.httpClient, c.extractURL+"/answer", in, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Translate converts a transcript into the audit working language.
func (c *LLMClient) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	in := map[string]string{"text": text, "target_language": targetLanguage}
	if err := postJSON(ctx, c.httpClient, c.translateURL, in, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}
