package models

import "testing"

func TestTableNames(t *testing.T) {
	if got := (Transaction{}).TableName(); got != "transactions" {
		t.Fatalf("unexpected Transaction table name: %s", got)
	}
	if got := (MerchantGateway{}).TableName(); got != "merchant_gateways" {
		t.Fatalf("unexpected MerchantGateway table name: %s", got)
	}
	if got := (RoutingAttempt{}).TableName(); got != "routing_attempts" {
		t.Fatalf("unexpected RoutingAttempt table name: %s", got)
	}
	if got := (WebhookRecord{}).TableName(); got != "webhooks" {
		t.Fatalf("unexpected WebhookRecord table name: %s", got)
	}
}

func TestAll_ListsEveryModel(t *testing.T) {
	if got := len(All()); got != 7 {
		t.Fatalf("expected 7 models, got %d", got)
	}
}
