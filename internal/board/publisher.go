package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ideaboard/ideaboard/internal/queue"
)

// DefaultBaseURL is the production board API endpoint
const DefaultBaseURL = "https://api.miro.com/v2"

// ErrBoardRejected marks 4xx responses: bad credentials, unknown board, or
// a payload the API refuses. Retrying cannot fix these.
var ErrBoardRejected = errors.New("board API rejected request")

// PublisherConfig holds board API settings
type PublisherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Publisher creates sticky notes on the remote board. It classifies remote
// failures as retryable or fatal and never retries internally; retry policy
// belongs to the job dispatcher, which keeps a redelivered timeout from
// turning into nested retry loops.
type Publisher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPublisher creates a board API publisher
func NewPublisher(cfg *PublisherConfig, logger *slog.Logger) *Publisher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Publisher{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type stickyNoteData struct {
	Content string `json:"content"`
	Shape   string `json:"shape"`
}

type stickyNoteStyle struct {
	FillColor         string `json:"fillColor"`
	TextAlign         string `json:"textAlign"`
	TextAlignVertical string `json:"textAlignVertical"`
}

type stickyNoteGeometry struct {
	Width int `json:"width"`
}

type stickyNoteRequest struct {
	Data     stickyNoteData     `json:"data"`
	Style    stickyNoteStyle    `json:"style"`
	Position Position           `json:"position"`
	Geometry stickyNoteGeometry `json:"geometry"`
}

type stickyNoteResponse struct {
	ID string `json:"id"`
}

// Publish creates one sticky note and returns the remote-assigned card id.
// 2xx succeeds; 4xx is fatal (wrapped ErrBoardRejected); 5xx, timeouts and
// connection errors come back as retryable.
func (p *Publisher) Publish(ctx context.Context, boardID string, card RenderedCard, pos Position) (string, error) {
	reqBody := stickyNoteRequest{
		Data: stickyNoteData{
			Content: card.Content,
			Shape:   card.Shape,
		},
		Style: stickyNoteStyle{
			FillColor:         card.FillColor,
			TextAlign:         "center",
			TextAlignVertical: "middle",
		},
		Position: pos,
		Geometry: stickyNoteGeometry{Width: card.Width},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal card payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/boards/%s/sticky_notes", p.baseURL, url.PathEscape(boardID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build card request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	p.logger.Debug("Creating board card",
		slog.String("board_id", boardID),
		slog.String("color", card.FillColor),
		slog.Float64("x", pos.X),
		slog.Float64("y", pos.Y),
	)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", queue.NewRetryableError(fmt.Errorf("board API request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var note stickyNoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
			return "", queue.NewRetryableError(fmt.Errorf("failed to decode board response: %w", err))
		}

		p.logger.Info("Board card created",
			slog.String("board_id", boardID),
			slog.String("card_id", note.ID),
		)
		return note.ID, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrBoardRejected, resp.StatusCode, string(detail))

	default:
		return "", queue.NewRetryableError(fmt.Errorf("board API server error: status %d", resp.StatusCode))
	}
}

// HealthCheck verifies the board is reachable with the configured key
func (p *Publisher) HealthCheck(ctx context.Context, boardID string) error {
	endpoint := fmt.Sprintf("%s/boards/%s", p.baseURL, url.PathEscape(boardID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build board request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("board API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("board API health check failed: status %d", resp.StatusCode)
	}

	return nil
}
