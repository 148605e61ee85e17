package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	CallID  string `json:"call_id"`
	Error   string `json:"error"`
}

func (g *HTTPGateway) SendReport(ctx context.Context, r *models.EmergencyReport) (*Ack, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, &SendError{Err: fmt.Errorf("error encoding report: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/emergency-call", bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &SendError{Err: fmt.Errorf("error while doing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SendError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status),
		}
	}

	var data sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &SendError{Err: fmt.Errorf("error decoding resp.Body: %w", err)}
	}
	if !data.Success {
		return nil, &SendError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server refused report: %s", data.Error),
		}
	}

	return &Ack{CallID: data.CallID}, nil
}

type resolveResponse struct {
	Success  bool `json:"success"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
}

func (g *HTTPGateway) ResolveAddress(ctx context.Context, lat, lng float64) (string, error) {
	payload, err := json.Marshal(map[string]float64{
		"latitude":  lat,
		"longitude": lng,
	})
	if err != nil {
		return "", fmt.Errorf("error encoding coordinates: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/location", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if !data.Success || data.Location.DisplayName == "" {
		return "", fmt.Errorf("no address for (%f, %f)", lat, lng)
	}

	return data.Location.DisplayName, nil
}

type recordingResponse struct {
	Success     bool   `json:"success"`
	RecordingID string `json:"recording_id"`
	Error       string `json:"error"`
}

func (g *HTTPGateway) StartRecording(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/recording/start", nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data recordingResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if !data.Success {
		return "", fmt.Errorf("server refused recording: %s", data.Error)
	}

	return data.RecordingID, nil
}

func (g *HTTPGateway) StopRecording(ctx context.Context, recordingID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/recording/stop/"+recordingID, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

func (g *HTTPGateway) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}
