package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/invoq-hq/be-approvals/internal/httpclient"
)

// DocumentClient talks to the documents service over HTTP.
type DocumentClient struct {
	client *httpclient.Client
}

// NewDocumentClient creates a documents service client.
func NewDocumentClient(baseURL string) *DocumentClient {
	return &DocumentClient{client: httpclient.NewClient(baseURL)}
}

type documentAmountResponse struct {
	DocumentID  string `json:"document_id"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

// GetAmount returns the document's total amount in cents.
func (c *DocumentClient) GetAmount(ctx context.Context, entityID, documentID string) (int64, error) {
	path := fmt.Sprintf("/api/v1/documents/amount?id=%s&entity_id=%s",
		url.QueryEscape(documentID), url.QueryEscape(entityID))

	var resp documentAmountResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("failed to get document amount: %w", err)
	}
	return resp.TotalAmount, nil
}

type setStatusRequest struct {
	DocumentID string `json:"document_id"`
	EntityID   string `json:"entity_id"`
	Status     string `json:"status"`
}

// SetStatus propagates an approval outcome to the document.
func (c *DocumentClient) SetStatus(ctx context.Context, entityID, documentID, status string) error {
	req := setStatusRequest{
		DocumentID: documentID,
		EntityID:   entityID,
		Status:     status,
	}

	if err := c.client.Post(ctx, "/api/v1/documents/status", req, nil); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}
