package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testCatalogJSON = `{
  "name": "test",
  "services": {
    "sales.orders": {
      "description": "Order handling",
      "versions": {
        "1.0.0": {"status": "active", "operations": {
          "Approve": {"kind": "action", "isBound": true, "parameters": [{"name": "_it", "type": "Orders"}]}
        }},
        "2.0.0": {"status": "active", "operations": {
          "Approve": {"kind": "action", "isBound": true, "parameters": [{"name": "_it", "type": "Orders"}, {"name": "Reason", "type": "Edm.String"}]}
        }},
        "3.0.0": {"status": "disabled", "operations": {}}
      }
    }
  }
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("metadata:catalog_test - write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog_FromPath(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalogJSON))
	if err != nil {
		t.Fatalf("metadata:catalog_test - LoadCatalog: %v", err)
	}
	if got := c.ServiceNames(); len(got) != 1 || got[0] != "sales.orders" {
		t.Errorf("metadata:catalog_test - ServiceNames() = %v", got)
	}
	if c.File().Name != "test" {
		t.Errorf("metadata:catalog_test - File().Name = %q", c.File().Name)
	}
}

func TestLoadCatalog_InvalidJSON(t *testing.T) {
	if _, err := LoadCatalog(writeCatalog(t, "{not json")); err == nil {
		t.Fatal("metadata:catalog_test - expected parse error")
	}
}

func TestLoadCatalog_MissingFallsBackToEmpty(t *testing.T) {
	t.Setenv("METADATA_FILE", "")
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("metadata:catalog_test - LoadCatalog: %v", err)
	}
	if len(c.ServiceNames()) != 0 {
		t.Errorf("metadata:catalog_test - expected empty catalog, got %v", c.ServiceNames())
	}
}

func TestCatalog_GetOperationMetadata(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalogJSON))
	if err != nil {
		t.Fatalf("metadata:catalog_test - LoadCatalog: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name       string
		ref        string
		wantParams int
		wantErr    bool
	}{
		{"latest active", "sales.orders/Approve", 2, false},
		{"major only", "sales.orders@1/Approve", 1, false},
		{"caret", "sales.orders@^2.0.0/Approve", 2, false},
		{"disabled only", "sales.orders@3/Approve", 0, true},
		{"unknown operation", "sales.orders/Reject", 0, true},
		{"unknown service", "sales.invoices/Approve", 0, true},
		{"malformed", "Approve", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := c.GetOperationMetadata(ctx, tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("metadata:catalog_test - expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("metadata:catalog_test - unexpected error: %v", err)
			}
			if len(md.Parameters) != tt.wantParams {
				t.Errorf("metadata:catalog_test - expected %d parameters, got %d", tt.wantParams, len(md.Parameters))
			}
			if md.Name != "Approve" {
				t.Errorf("metadata:catalog_test - Name = %q", md.Name)
			}
		})
	}
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	c, _ := LoadCatalog(writeCatalog(t, testCatalogJSON))
	md, err := c.GetOperationMetadata(context.Background(), "sales.orders/Approve")
	if err != nil {
		t.Fatalf("metadata:catalog_test - unexpected error: %v", err)
	}
	md.Parameters[0].Name = "mutated"
	again, _ := c.GetOperationMetadata(context.Background(), "sales.orders/Approve")
	if again.Parameters[0].Name != "_it" {
		t.Error("metadata:catalog_test - catalog entries must not be mutated through results")
	}
}
