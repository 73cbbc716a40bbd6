package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"grouping-backfill/internal/domain/model"
)

// Client is the low-level HTTP client for the similarity-scoring service.
// One call scores one group's stacktrace and returns its grouping-record
// outcome. The batch strategies in this package fan calls out over it.
type Client struct {
	base   string
	client *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("similarity base url empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type scoreRequest struct {
	ProjectID     int64  `json:"project_id"`
	GroupID       int64  `json:"group_id"`
	Hash          string `json:"hash"`
	Message       string `json:"message"`
	ExceptionType string `json:"exception_type"`
	Stacktrace    string `json:"stacktrace"`
}

type scoreResponse struct {
	Success            bool   `json:"success"`
	Reason             string `json:"reason"`
	GroupingRecordHash string `json:"grouping_record_hash"`
	SimilarGroupID     *int64 `json:"similar_group_id"`
}

// ScoreGroup submits one group's snapshot for scoring.
func (c *Client) ScoreGroup(ctx context.Context, projectID int64, snap model.EventSnapshot) (model.ScoreOutcome, error) {
	body := scoreRequest{
		ProjectID:     projectID,
		GroupID:       snap.GroupID,
		Hash:          snap.Hash,
		Message:       snap.Message,
		ExceptionType: snap.ExceptionType,
		Stacktrace:    snap.Stacktrace,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return model.ScoreOutcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/grouping-records/score", bytes.NewReader(b))
	if err != nil {
		return model.ScoreOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.ScoreOutcome{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return model.ScoreOutcome{}, fmt.Errorf("similarity http %d", resp.StatusCode)
	}

	var payload scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.ScoreOutcome{}, err
	}
	if !payload.Success {
		reason := payload.Reason
		if reason == "" {
			reason = "unspecified"
		}
		return model.ScoreOutcome{}, fmt.Errorf("similarity refused group %d: %s", snap.GroupID, reason)
	}

	return model.ScoreOutcome{
		GroupID:            snap.GroupID,
		GroupingRecordHash: payload.GroupingRecordHash,
		SimilarGroupID:     payload.SimilarGroupID,
	}, nil
}
