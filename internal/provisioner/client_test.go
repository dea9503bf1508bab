package provisioner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/phoenix-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

func TestCreateWithModulesSendsSecretAndParsesProject(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/projects/create-with-modules" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Internal-Secret") != "s3cret" {
			t.Errorf("missing internal secret header")
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"success":true,"data":{"project":{"id":"proj_1"},"modules":[{},{}],"briefs":[{},{}]}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.ProvisionerConfig{BaseURL: srv.URL + "/", InternalSecret: "s3cret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := client.CreateWithModules(context.Background(), ModulesRequest{
		ClientID:    "c1",
		InvoiceID:   "i1",
		TotalBudget: decimal.RequireFromString("150.00"),
		Modules: []Module{
			{PlanID: "p1", PlanName: "Pack A", PriceCents: 10000, Type: "production"},
			{PlanID: "p2", PlanName: "Pack B", PriceCents: 5000, Type: "production"},
		},
	})
	if err != nil {
		t.Fatalf("create with modules: %v", err)
	}
	if res.ProjectID != "proj_1" || res.Modules != 2 || res.Briefs != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if captured["totalBudget"].(float64) != 150 {
		t.Fatalf("unexpected totalBudget %v", captured["totalBudget"])
	}
	if len(captured["modules"].([]any)) != 2 {
		t.Fatalf("expected two modules in payload")
	}
}

func TestCreateWithWorkflowAcceptsNumericProjectID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/projects/create-with-workflow" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"project":{"id":42},"brief":{"id":1},"steps":[{},{},{}]}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(config.ProvisionerConfig{BaseURL: srv.URL})
	res, err := client.CreateWithWorkflow(context.Background(), WorkflowRequest{
		ClientID: "c1", InvoiceID: "i1", PlanID: "growth", PlanName: "Growth", Budget: decimal.NewFromInt(49),
	})
	if err != nil {
		t.Fatalf("create with workflow: %v", err)
	}
	if res.ProjectID != "42" || res.Briefs != 1 || res.Steps != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFailuresAreDependencyErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"unsuccessful": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error":"plan unknown"}`))
		},
		"no project": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			client, _ := NewClient(config.ProvisionerConfig{BaseURL: srv.URL})
			_, err := client.CreateWithWorkflow(context.Background(), WorkflowRequest{PlanID: "p"})
			if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				t.Fatalf("expected dependency error, got %v", err)
			}
		})
	}
}

func TestTimeoutIsDependencyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client, _ := NewClient(config.ProvisionerConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := client.CreateWithModules(context.Background(), ModulesRequest{Modules: []Module{{PlanID: "p"}}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error on timeout, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(config.ProvisionerConfig{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}
