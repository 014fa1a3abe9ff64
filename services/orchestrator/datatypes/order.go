// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/weaviate/weaviate/entities/models"
)

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductId string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is a shopper's purchase record, surfaced to the model through the
// get_order_details tool.
type Order struct {
	Id        string      `json:"order_id"`
	OwnerId   string      `json:"owner_id"`
	Status    string      `json:"status"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

// GetOrderSchema returns the Weaviate class for order records.
//
// Items are stored as a JSON-encoded text blob; orders are looked up by
// exact order_id, never searched semantically, so no vectorizer is attached.
func GetOrderSchema() *models.Class {
	return &models.Class{
		Class:       "Order",
		Description: "A shopper's purchase record",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "order_id", DataType: []string{"text"}, Description: "Unique order identifier"},
			{Name: "owner_id", DataType: []string{"text"}, Description: "User who placed the order"},
			{Name: "status", DataType: []string{"text"}, Description: "Fulfillment status"},
			{Name: "items", DataType: []string{"text"}, Description: "JSON-encoded order lines"},
			{Name: "total", DataType: []string{"number"}, Description: "Order total"},
			{Name: "created_at", DataType: []string{"number"}, Description: "Placement time in Unix milliseconds"},
		},
	}
}

// OrderQueryResponse maps the GraphQL Get response for the Order class.
type OrderQueryResponse struct {
	Get struct {
		Order []OrderResult `json:"Order"`
	} `json:"Get"`
}

// OrderResult is a single Order object as returned by GraphQL.
type OrderResult struct {
	OrderId   string  `json:"order_id"`
	OwnerId   string  `json:"owner_id"`
	Status    string  `json:"status"`
	Items     string  `json:"items"`
	Total     float64 `json:"total"`
	CreatedAt float64 `json:"created_at"`
}
