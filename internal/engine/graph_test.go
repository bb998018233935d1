package engine

import (
	"testing"

	"github.com/shaiso/Convoy/internal/domain"
)

func TestRootGraph_KnownTypes(t *testing.T) {
	for _, pt := range []domain.ProcessType{
		domain.ProcessTypeDeploy,
		domain.ProcessTypeBlueGreenDeploy,
		domain.ProcessTypeUndeploy,
		domain.ProcessTypeRollbackMTA,
	} {
		g, err := RootGraph(pt)
		if err != nil {
			t.Fatalf("RootGraph(%s): %v", pt, err)
		}
		if g.Len() == 0 {
			t.Errorf("RootGraph(%s): empty graph", pt)
		}

		// Каждый корневой граф порождает под-процессы модулей.
		found := false
		for _, n := range g.Nodes {
			if n == spawnModulesNode {
				found = true
			}
		}
		if !found {
			t.Errorf("RootGraph(%s): no module spawn node", pt)
		}
	}
}

func TestRootGraph_UnknownType(t *testing.T) {
	if _, err := RootGraph("VALIDATE"); err == nil {
		t.Fatal("expected an error for an unknown process type")
	}
}

func TestRootGraph_DeployOrdering(t *testing.T) {
	g, err := RootGraph(domain.ProcessTypeDeploy)
	if err != nil {
		t.Fatalf("root graph: %v", err)
	}

	index := make(map[string]int, g.Len())
	for i, n := range g.Nodes {
		index[n] = i
	}

	// Сервисы создаются до модулей, брокеры регистрируются после.
	if index["createServices"] > index[spawnModulesNode] {
		t.Error("services must be created before modules are deployed")
	}
	if index["registerServiceBrokers"] < index[spawnModulesNode] {
		t.Error("brokers are registered after modules are deployed")
	}
	if index["deleteServices"] < index["registerServiceBrokers"] {
		t.Error("obsolete services are deleted last")
	}
}

func TestModuleGraph_PerProcessType(t *testing.T) {
	tests := []struct {
		pt    domain.ProcessType
		first string
		last  string
	}{
		{domain.ProcessTypeDeploy, "uploadApp", "scaleApp"},
		{domain.ProcessTypeBlueGreenDeploy, "uploadApp", "incrementalInstanceUpdate"},
		{domain.ProcessTypeUndeploy, "stopApp", "unbindServices"},
		{domain.ProcessTypeRollbackMTA, "stopApp", "scaleApp"},
	}

	for _, tt := range tests {
		g := ModuleGraph(tt.pt, false)
		if g.Len() == 0 {
			t.Fatalf("ModuleGraph(%s): empty", tt.pt)
		}
		if g.Nodes[0] != tt.first {
			t.Errorf("ModuleGraph(%s): first node %s, want %s", tt.pt, g.Nodes[0], tt.first)
		}
		if g.Nodes[g.Len()-1] != tt.last {
			t.Errorf("ModuleGraph(%s): last node %s, want %s", tt.pt, g.Nodes[g.Len()-1], tt.last)
		}
	}
}

func TestModuleGraph_TaskAppended(t *testing.T) {
	g := ModuleGraph(domain.ProcessTypeDeploy, true)
	if g.Nodes[g.Len()-1] != "executeTask" {
		t.Errorf("task must run after the module is started, got %v", g.Nodes)
	}

	// Undeploy не исполняет task'и даже если модуль их объявляет.
	g = ModuleGraph(domain.ProcessTypeUndeploy, true)
	for _, n := range g.Nodes {
		if n == "executeTask" {
			t.Error("undeploy must not execute tasks")
		}
	}
}

func TestGraph_NodeBounds(t *testing.T) {
	g := ModuleGraph(domain.ProcessTypeDeploy, false)

	if _, ok := g.Node(-1); ok {
		t.Error("negative index")
	}
	if _, ok := g.Node(g.Len()); ok {
		t.Error("index past the end")
	}
	if n, ok := g.Node(0); !ok || n != "uploadApp" {
		t.Errorf("unexpected first node: %s (%v)", n, ok)
	}
}
