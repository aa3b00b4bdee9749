package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/poiesic/protrieve/ai"
)

type encodeRequest struct {
	Model     string   `json:"model"`
	Sequences []string `json:"sequences"`
}

type encodeResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
	Error      string        `json:"error,omitempty"`
}

// Encoder implements ai.SequenceEncoder against a remote encoder service.
type Encoder struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
	logger   *slog.Logger
}

var _ ai.SequenceEncoder = (*Encoder)(nil)

// NewEncoder creates an encoder bound to the given device index.
func NewEncoder(config *ai.Config, device int) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if device < 0 {
		return nil, fmt.Errorf("remote encoder: invalid device %d", device)
	}
	return &Encoder{
		endpoint: config.EncoderHost + "/encode?device=" + strconv.Itoa(device),
		model:    config.EncoderModel,
		dim:      config.Dimension,
		client:   &http.Client{Timeout: config.RequestTimeout},
		logger:   slog.Default().With("component", "remote-encoder", "device", device),
	}, nil
}

// NewEncoders creates one encoder per device.
func NewEncoders(config *ai.Config, devices int) ([]ai.SequenceEncoder, error) {
	if devices <= 0 {
		devices = 1
	}
	out := make([]ai.SequenceEncoder, 0, devices)
	for d := 0; d < devices; d++ {
		enc, err := NewEncoder(config, d)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// Dimension returns the residue vector width.
func (e *Encoder) Dimension() int {
	return e.dim
}

// EncodeResidues sends one batch to the service.
func (e *Encoder) EncodeResidues(ctx context.Context, sequences []string) ([][][]float32, error) {
	if len(sequences) == 0 {
		return nil, nil
	}

	body, err := sonic.ConfigStd.Marshal(encodeRequest{Model: e.model, Sequences: sequences})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	e.logger.Debug("encoding batch", "sequences", len(sequences))
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encoder request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read encoder response: %w", err)
	}

	var decoded encodeResponse
	// Error bodies are not always JSON.
	_ = sonic.ConfigStd.Unmarshal(raw, &decoded)

	if resp.StatusCode != http.StatusOK {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if resp.StatusCode == http.StatusInsufficientStorage || isOutOfMemory(msg) {
			e.logger.Warn("encoder out of memory", "sequences", len(sequences))
			return nil, fmt.Errorf("encoder status %d: %s: %w", resp.StatusCode, msg, ai.ErrOutOfMemory)
		}
		return nil, fmt.Errorf("encoder status %d: %s", resp.StatusCode, msg)
	}
	if decoded.Error != "" {
		if isOutOfMemory(decoded.Error) {
			return nil, fmt.Errorf("encoder: %s: %w", decoded.Error, ai.ErrOutOfMemory)
		}
		return nil, fmt.Errorf("encoder: %s", decoded.Error)
	}

	if err := checkShape(sequences, decoded.Embeddings, e.dim); err != nil {
		return nil, err
	}
	return decoded.Embeddings, nil
}

func isOutOfMemory(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "out of memory")
}

func checkShape(sequences []string, out [][][]float32, dim int) error {
	if len(out) != len(sequences) {
		return fmt.Errorf("%w: %d sequences, %d results", ai.ErrShapeMismatch, len(sequences), len(out))
	}
	for i, rows := range out {
		if len(rows) != len(sequences[i]) {
			return fmt.Errorf("%w: sequence %d has %d residues, %d rows", ai.ErrShapeMismatch, i, len(sequences[i]), len(rows))
		}
		for _, row := range rows {
			if len(row) != dim {
				return fmt.Errorf("%w: row width %d, want %d", ai.ErrShapeMismatch, len(row), dim)
			}
		}
	}
	return nil
}
