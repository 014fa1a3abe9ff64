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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSide struct {
	emissions []struct {
		tool    string
		payload string
	}
}

func (f *fakeSide) EmitSide(toolName string, payload json.RawMessage) error {
	f.emissions = append(f.emissions, struct {
		tool    string
		payload string
	}{toolName, string(payload)})
	return nil
}

type fakeFinder struct {
	gotQuery string
	gotLimit int
	snippets []datatypes.ContextSnippet
	err      error
}

func (f *fakeFinder) Search(_ context.Context, query string, limit int) ([]datatypes.ContextSnippet, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.snippets, f.err
}

type fakeOrders struct {
	gotOwner string
	order    *datatypes.Order
	err      error
}

func (f *fakeOrders) GetOrder(_ context.Context, ownerID, orderID string) (*datatypes.Order, error) {
	f.gotOwner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

type fakeSink struct {
	docID    string
	gotTitle string
	gotKind  string
	err      error
}

func (f *fakeSink) CreateDocument(_ context.Context, ownerID, conversationID,
	title, kind, content string) (string, error) {
	f.gotTitle = title
	f.gotKind = kind
	return f.docID, f.err
}

func execContext(side SideChannel) *ExecContext {
	return &ExecContext{
		UserID:         "u1",
		ConversationID: "c1",
		Side:           side,
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := NewSearchProductsTool(&fakeFinder{})

	require.NoError(t, r.Register(tool))
	assert.Equal(t, tool, r.Get("search_products"))
	assert.Nil(t, r.Get("no_such_tool"))
	assert.Len(t, r.List(), 1)

	assert.Error(t, r.Register(tool), "duplicate registration must fail")
}

// =============================================================================
// search_products Tests
// =============================================================================

func TestSearchProducts_DefaultsAndSideEvent(t *testing.T) {
	finder := &fakeFinder{snippets: []datatypes.ContextSnippet{
		{ProductId: "p1", Name: "Trail Shoe", Price: 89.99, Stock: 4},
	}}
	side := &fakeSide{}
	tool := NewSearchProductsTool(finder)

	result, err := tool.Execute(context.Background(), execContext(side),
		json.RawMessage(`{"query":"running shoes"}`))
	require.NoError(t, err)

	assert.Equal(t, "running shoes", finder.gotQuery)
	assert.Equal(t, searchProductsDefaultLimit, finder.gotLimit)

	var parsed struct {
		Products []datatypes.ContextSnippet `json:"products"`
	}
	require.NoError(t, json.Unmarshal(result, &parsed))
	require.Len(t, parsed.Products, 1)
	assert.Equal(t, "p1", parsed.Products[0].ProductId)

	require.Len(t, side.emissions, 1)
	assert.Equal(t, "search_products", side.emissions[0].tool)
	assert.Contains(t, side.emissions[0].payload, "Trail Shoe")
}

func TestSearchProducts_LimitClamping(t *testing.T) {
	finder := &fakeFinder{}
	tool := NewSearchProductsTool(finder)

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"query":"socks","limit":50}`))
	require.NoError(t, err)
	assert.Equal(t, searchProductsDefaultLimit, finder.gotLimit)

	_, err = tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"query":"socks","limit":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, finder.gotLimit)
}

func TestSearchProducts_MissingQuery(t *testing.T) {
	tool := NewSearchProductsTool(&fakeFinder{})

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestSearchProducts_BackendError(t *testing.T) {
	tool := NewSearchProductsTool(&fakeFinder{err: errors.New("index down")})

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"query":"hats"}`))
	assert.Error(t, err)
}

// =============================================================================
// get_order_details Tests
// =============================================================================

func TestGetOrderDetails_ScopedToCaller(t *testing.T) {
	orders := &fakeOrders{order: &datatypes.Order{
		Id:     "o1",
		Status: "shipped",
		Total:  120.50,
	}}
	tool := NewGetOrderDetailsTool(orders)

	result, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"order_id":"o1"}`))
	require.NoError(t, err)

	assert.Equal(t, "u1", orders.gotOwner)

	var parsed struct {
		Found bool            `json:"found"`
		Order datatypes.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.True(t, parsed.Found)
	assert.Equal(t, "shipped", parsed.Order.Status)
}

func TestGetOrderDetails_NotFoundIsAResultNotAnError(t *testing.T) {
	tool := NewGetOrderDetailsTool(&fakeOrders{err: datatypes.ErrNotFound})

	result, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"order_id":"missing"}`))
	require.NoError(t, err)

	var parsed struct {
		Found   bool   `json:"found"`
		OrderId string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.False(t, parsed.Found)
	assert.Equal(t, "missing", parsed.OrderId)
}

func TestGetOrderDetails_BackendErrorPropagates(t *testing.T) {
	tool := NewGetOrderDetailsTool(&fakeOrders{err: errors.New("store offline")})

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"order_id":"o1"}`))
	assert.Error(t, err)
}

// =============================================================================
// create_document Tests
// =============================================================================

func TestCreateDocument_AnnouncesOnSideChannel(t *testing.T) {
	sink := &fakeSink{docID: "d1"}
	side := &fakeSide{}
	tool := NewCreateDocumentTool(sink)

	result, err := tool.Execute(context.Background(), execContext(side),
		json.RawMessage(`{"title":"Shoe comparison","kind":"sheet","content":"| model | price |"}`))
	require.NoError(t, err)

	assert.Equal(t, "sheet", sink.gotKind)

	var parsed struct {
		DocumentId string `json:"document_id"`
	}
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, "d1", parsed.DocumentId)

	require.Len(t, side.emissions, 1)
	assert.Contains(t, side.emissions[0].payload, "Shoe comparison")
}

func TestCreateDocument_UnknownKindFallsBackToText(t *testing.T) {
	sink := &fakeSink{docID: "d1"}
	tool := NewCreateDocumentTool(sink)

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"title":"Notes","kind":"spreadsheet3d","content":"body"}`))
	require.NoError(t, err)
	assert.Equal(t, "text", sink.gotKind)
}

func TestCreateDocument_RequiresTitleAndContent(t *testing.T) {
	tool := NewCreateDocumentTool(&fakeSink{docID: "d1"})

	_, err := tool.Execute(context.Background(), execContext(&fakeSide{}),
		json.RawMessage(`{"kind":"text","content":"body"}`))
	assert.Error(t, err)
}
