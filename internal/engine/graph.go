package engine

import (
	"fmt"

	"github.com/shaiso/Convoy/internal/domain"
)

// spawnModulesNode — псевдошаг корневого процесса: порождает дочерние
// под-процессы по модулям и ждёт их завершения.
const spawnModulesNode = "!spawnModules"

// Graph — последовательность узлов процесса.
//
// Узел — либо имя шага из реестра, либо псевдошаг spawnModulesNode.
// Порядок фиксирован; позиция экземпляра в графе (step index)
// персистится после каждого тика.
type Graph struct {
	Type  domain.ProcessType
	Nodes []string
}

// rootGraphs — корневые графы по типу процесса.
var rootGraphs = map[domain.ProcessType]Graph{
	domain.ProcessTypeDeploy: {
		Type: domain.ProcessTypeDeploy,
		Nodes: []string{
			"createServices",
			"createServiceKeys",
			spawnModulesNode,
			"registerServiceBrokers",
			"deleteServices",
		},
	},
	domain.ProcessTypeBlueGreenDeploy: {
		Type: domain.ProcessTypeBlueGreenDeploy,
		Nodes: []string{
			"createServices",
			"createServiceKeys",
			spawnModulesNode,
			"registerServiceBrokers",
			"deleteServices",
		},
	},
	domain.ProcessTypeUndeploy: {
		Type: domain.ProcessTypeUndeploy,
		Nodes: []string{
			spawnModulesNode,
			"deleteServiceBrokers",
			"deleteServices",
		},
	},
	domain.ProcessTypeRollbackMTA: {
		Type: domain.ProcessTypeRollbackMTA,
		Nodes: []string{
			spawnModulesNode,
			"deleteServices",
		},
	},
}

// RootGraph возвращает корневой граф процесса.
func RootGraph(t domain.ProcessType) (Graph, error) {
	g, ok := rootGraphs[t]
	if !ok {
		return Graph{}, fmt.Errorf("no process graph for type %s", t)
	}
	return g, nil
}

// ModuleGraph возвращает граф дочернего под-процесса одного модуля.
//
// hasTask добавляет выполнение одноразового task'а после старта.
func ModuleGraph(t domain.ProcessType, hasTask bool) Graph {
	var nodes []string

	switch t {
	case domain.ProcessTypeBlueGreenDeploy:
		// Новое (idle) приложение стартует рядом со старым, затем
		// инстансы переключаются по одному.
		nodes = []string{
			"uploadApp",
			"bindServices",
			"startApp",
			"incrementalInstanceUpdate",
		}

	case domain.ProcessTypeUndeploy:
		nodes = []string{
			"stopApp",
			"unbindServices",
		}

	case domain.ProcessTypeRollbackMTA:
		// Откат возвращает предыдущее приложение: стоп текущего,
		// старт сохранённого, переразвод инстансов.
		nodes = []string{
			"stopApp",
			"startApp",
			"scaleApp",
		}

	default: // DEPLOY
		nodes = []string{
			"uploadApp",
			"stopApp",
			"bindServices",
			"startApp",
			"scaleApp",
		}
	}

	if hasTask && t != domain.ProcessTypeUndeploy {
		nodes = append(nodes, "executeTask")
	}

	return Graph{Type: t, Nodes: nodes}
}

// Len возвращает число узлов графа.
func (g Graph) Len() int { return len(g.Nodes) }

// Node возвращает узел по индексу.
func (g Graph) Node(i int) (string, bool) {
	if i < 0 || i >= len(g.Nodes) {
		return "", false
	}
	return g.Nodes[i], true
}
