//go:build integration

// Package test contains integration tests that exercise the template API
// against a real DynamoDB endpoint (LocalStack or DynamoDB Local). They are
// skipped by default during `go test ./...` and must be run explicitly with
// the integration build tag:
//
//	go test -v -tags integration ./test/
//
// Prerequisites:
//   - LocalStack or DynamoDB Local listening on AWS_ENDPOINT_URL
//     (default http://localhost:4566)
//   - Any static credentials (AWS_ACCESS_KEY_ID=test AWS_SECRET_ACCESS_KEY=test)
package test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"testpulse/internal/api/handlers"
	"testpulse/internal/config"
	"testpulse/internal/core"
	"testpulse/internal/store"
	"testpulse/internal/templates"
	"testpulse/internal/types"
)

const (
	testTemplatesTable = "IntegrationTemplates"
	testTemplatesIndex = "EventTypeChannelIndex"
)

func testEndpoint() string {
	if url := os.Getenv("AWS_ENDPOINT_URL"); url != "" {
		return url
	}
	return "http://localhost:4566"
}

// connectTestTables creates a fresh templates table, skipping the test when
// no endpoint is reachable.
func connectTestTables(t *testing.T) *dynamodb.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := config.LoadAWSConfig(ctx, config.AWSConfig{Region: "us-east-1", EndpointURL: testEndpoint()})
	if err != nil {
		t.Skipf("skipping integration test: cannot load AWS config: %v", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		t.Skipf("skipping integration test: DynamoDB not available: %v", err)
	}

	dropTable(t, client)
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(testTemplatesTable),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("templateId"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("eventType"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("channel"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("templateId"), KeyType: ddbtypes.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []ddbtypes.GlobalSecondaryIndex{{
			IndexName: aws.String(testTemplatesIndex),
			KeySchema: []ddbtypes.KeySchemaElement{
				{AttributeName: aws.String("eventType"), KeyType: ddbtypes.KeyTypeHash},
				{AttributeName: aws.String("channel"), KeyType: ddbtypes.KeyTypeRange},
			},
			Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
		}},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(testTemplatesTable)}, 10*time.Second); err != nil {
		t.Fatalf("waiting for table: %v", err)
	}

	t.Cleanup(func() { dropTable(t, client) })
	return client
}

func dropTable(t *testing.T, client *dynamodb.Client) {
	t.Helper()
	_, err := client.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{TableName: aws.String(testTemplatesTable)})
	var notFound *ddbtypes.ResourceNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		t.Logf("cleanup: failed to delete table: %v", err)
	}
}

// newTestServer wires the same stack cmd/api builds, against client.
func newTestServer(t *testing.T, client *dynamodb.Client) *core.Server {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	cfg.Tables.Templates = testTemplatesTable
	cfg.Tables.EventTypeChannelIndex = testTemplatesIndex

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	repo := store.NewTemplateRepository(client, testTemplatesTable, testTemplatesIndex)
	service := templates.NewService(repo, types.RealClock{}, types.NopLogger{})
	srv.RouteRegistrars = append(srv.RouteRegistrars, handlers.NewTemplateHandler(service, srv.Validator, logger).RegisterRoutes)
	srv.HealthProbes = append(srv.HealthProbes, store.NewTableProbe(client, testTemplatesTable))
	srv.MountRoutes()
	return srv
}

func doJSON(t *testing.T, srv *core.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func TestIntegration_TemplateLifecycle(t *testing.T) {
	client := connectTestTables(t)
	srv := newTestServer(t, client)

	status, resp := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d, body %v", status, resp)
	}

	status, resp = doJSON(t, srv, http.MethodPost, "/v1/templates", map[string]any{
		"eventType": "test_failure",
		"channel":   "email",
		"format":    "html",
		"subject":   "{{testCaseId}} failed",
		"body":      "<p>{{testCaseId}}: {{errorMessage}}</p>",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status %d, body %v", status, resp)
	}
	created := resp["data"].(map[string]any)
	id, _ := created["templateId"].(string)
	if id == "" {
		t.Fatalf("create returned no templateId: %v", created)
	}

	// GSIs are eventually consistent.
	var found bool
	for n := 0; n < 10; n++ {
		status, resp = doJSON(t, srv, http.MethodGet, "/v1/templates?eventType=test_failure&channel=email", nil)
		if status == http.StatusOK {
			found = true
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !found {
		t.Fatalf("lookup never found the template: status %d, body %v", status, resp)
	}
	if got := resp["data"].(map[string]any)["templateId"]; got != id {
		t.Errorf("lookup templateId = %v, want %s", got, id)
	}

	status, resp = doJSON(t, srv, http.MethodPatch, "/v1/templates/"+id, map[string]any{
		"body": "<p>{{testCaseId}} broke</p>",
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d, body %v", status, resp)
	}

	status, resp = doJSON(t, srv, http.MethodPost, "/v1/templates/preview", map[string]any{
		"templateId": id,
		"variables":  map[string]any{"testCaseId": "tc-9"},
	})
	if status != http.StatusOK {
		t.Fatalf("preview: status %d, body %v", status, resp)
	}
	if body := resp["data"].(map[string]any)["body"]; body != "<p>tc-9 broke</p>" {
		t.Errorf("preview body = %v", body)
	}

	if status, _ = doJSON(t, srv, http.MethodDelete, "/v1/templates/"+id, nil); status != http.StatusNoContent {
		t.Fatalf("delete: status %d", status)
	}
	if status, _ = doJSON(t, srv, http.MethodGet, "/v1/templates/"+id, nil); status != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", status)
	}
}

func TestIntegration_DuplicateTemplateID(t *testing.T) {
	client := connectTestTables(t)
	srv := newTestServer(t, client)

	body := map[string]any{
		"templateId": "tmpl-fixed",
		"eventType":  "test_completion",
		"channel":    "sms",
		"format":     "text",
		"body":       "{{testCaseId}} passed",
	}
	if status, resp := doJSON(t, srv, http.MethodPost, "/v1/templates", body); status != http.StatusCreated {
		t.Fatalf("first create: status %d, body %v", status, resp)
	}
	status, resp := doJSON(t, srv, http.MethodPost, "/v1/templates", body)
	if status < 400 {
		t.Fatalf("duplicate create: status %d, body %v", status, resp)
	}
	t.Logf("duplicate create rejected with %d", status)
}
