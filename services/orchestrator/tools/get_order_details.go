// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// OrderSource looks up a shopper's order by its ID. Missing orders are
// reported with datatypes.ErrNotFound.
//
// Satisfied by store.WeaviateStore. Lookups are scoped to the owner: a user
// can never read another user's order through this tool.
type OrderSource interface {
	GetOrder(ctx context.Context, ownerID, orderID string) (*datatypes.Order, error)
}

// GetOrderDetailsTool answers "where is my order" questions with real
// fulfillment data instead of letting the model guess.
type GetOrderDetailsTool struct {
	orders OrderSource
}

func NewGetOrderDetailsTool(orders OrderSource) *GetOrderDetailsTool {
	return &GetOrderDetailsTool{orders: orders}
}

func (t *GetOrderDetailsTool) Name() string { return "get_order_details" }

func (t *GetOrderDetailsTool) Description() string {
	return "Look up the status, items, and total of one of the shopper's own orders by order ID."
}

func (t *GetOrderDetailsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"order_id": {"type": "string", "description": "The order identifier quoted by the shopper"}
		},
		"required": ["order_id"]
	}`)
}

// Execute fetches the order for the calling user. A missing order is
// reported to the model as a structured not-found result rather than an
// error, so the model can tell the shopper directly.
func (t *GetOrderDetailsTool) Execute(ctx context.Context, ec *ExecContext,
	args json.RawMessage) (json.RawMessage, error) {
	var parsed struct {
		OrderId string `json:"order_id"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("get_order_details: bad arguments: %w", err)
	}
	if parsed.OrderId == "" {
		return nil, fmt.Errorf("get_order_details: order_id is required")
	}

	order, err := t.orders.GetOrder(ctx, ec.UserID, parsed.OrderId)
	if errors.Is(err, datatypes.ErrNotFound) {
		return json.Marshal(map[string]any{"found": false, "order_id": parsed.OrderId})
	}
	if err != nil {
		return nil, fmt.Errorf("get_order_details: %w", err)
	}

	result, err := json.Marshal(map[string]any{"found": true, "order": order})
	if err != nil {
		return nil, fmt.Errorf("get_order_details: encode result: %w", err)
	}
	return result, nil
}

var _ Tool = (*GetOrderDetailsTool)(nil)
