package transport

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func multipartRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("failed to write form field %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close form writer: %v", err)
	}

	req := httptest.NewRequest("PUT", "/api/products/test", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(maxUploadSize); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	return req
}

func TestProductUpdateFormDistinguishesZeroFromAbsent(t *testing.T) {
	req := multipartRequest(t, map[string]string{
		"stock":         "0",
		"discount_type": "",
	})

	input, err := productUpdateFromForm(req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if input.Stock == nil || *input.Stock != 0 {
		t.Error("stock=0 must parse as an explicit zero")
	}
	if input.Discount == nil || input.Discount.Type != "" || input.Discount.Amount != 0 {
		t.Error("an empty discount_type must parse as a cleared discount")
	}
	if input.Title != nil || input.Overview != nil || input.BasePrice != nil || input.BrandID != nil {
		t.Error("omitted fields must stay nil")
	}
}

func TestProductUpdateFormParsesPresentFields(t *testing.T) {
	req := multipartRequest(t, map[string]string{
		"title":           "New Title",
		"base_price":      "49.5",
		"discount_type":   "percentage",
		"discount_amount": "10",
	})

	input, err := productUpdateFromForm(req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if input.Title == nil || *input.Title != "New Title" {
		t.Error("title not parsed")
	}
	if input.BasePrice == nil || *input.BasePrice != 49.5 {
		t.Error("base_price not parsed")
	}
	if input.Discount == nil || string(input.Discount.Type) != "percentage" || input.Discount.Amount != 10 {
		t.Errorf("discount not parsed, got %+v", input.Discount)
	}
	if input.Stock != nil {
		t.Error("omitted stock must stay nil")
	}
}

func TestProductUpdateFormRejectsMalformedNumbers(t *testing.T) {
	req := multipartRequest(t, map[string]string{"stock": "many"})

	if _, err := productUpdateFromForm(req); err == nil {
		t.Fatal("expected a parse error for a non-numeric stock")
	}
}
