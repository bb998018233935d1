package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// bindingOperationLookup достаёт last operation одной связки/ключа.
// nil без ошибки — платформа не знает операции.
type bindingOperationLookup func(ctx context.Context, client cf.Client, scope, name string) (*domain.BindingOperation, bool, error)

// pollBindingOperations — общий алгоритм poll-тика для связок и ключей.
//
// Pending-набор (ссылка → опциональность) сокращается каждый тик:
// остаются только IN_PROGRESS. FAILED неопционального ресурса —
// жёсткий сбой; опционального — warning.
func pollBindingOperations(ctx context.Context, pc *process.Context, lookup bindingOperationLookup, kind string) (AsyncState, error) {
	pending, err := process.GetOrDefault(ctx, pc, VarBindingsToPoll)
	if err != nil {
		return AsyncError, err
	}
	if len(pending) == 0 {
		return AsyncFinished, nil
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	// Стабильный порядок обхода для детерминированных логов.
	refs := make([]string, 0, len(pending))
	for ref := range pending {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	remaining := make(map[string]bool)
	for _, ref := range refs {
		optional := pending[ref]
		scope, name, ok := strings.Cut(ref, "/")
		if !ok {
			return AsyncError, fmt.Errorf("malformed %s reference %q", kind, ref)
		}

		op, exists, err := lookup(ctx, client, scope, name)
		if err != nil {
			if cf.IsNotFound(err) {
				// Исчезнувший ресурс: для delete — успех.
				pc.Logger().Debug(kind+" no longer exists", "ref", ref)
				continue
			}
			if optional {
				pc.Logger().Warn("cannot poll optional "+kind+", dropping it", "ref", ref, "error", err)
				continue
			}
			return AsyncError, fmt.Errorf("poll %s %q: %w", kind, ref, err)
		}
		if !exists {
			continue
		}

		if op == nil {
			if optional {
				pc.Logger().Warn("optional "+kind+" has no last operation, dropping it", "ref", ref)
				continue
			}
			return AsyncError, fmt.Errorf("%s %q has no last operation, its state cannot be trusted", kind, ref)
		}

		switch op.State {
		case domain.ServiceOperationSucceeded:
			pc.Logger().Debug(kind+" operation succeeded", "ref", ref, "operation", op.Type)

		case domain.ServiceOperationFailed:
			if optional {
				pc.Logger().Warn("operation on optional "+kind+" failed, continuing",
					"ref", ref,
					"description", op.Description,
				)
				continue
			}
			return AsyncError, fmt.Errorf("operation %s on %s %q failed: %s",
				op.Type, kind, ref, op.Description)

		default:
			remaining[ref] = optional
		}
	}

	if err := process.Set(ctx, pc, VarBindingsToPoll, remaining); err != nil {
		return AsyncError, err
	}

	if len(remaining) == 0 {
		return AsyncFinished, nil
	}
	return AsyncRunning, nil
}

// ServiceBindingsPoller опрашивает операции над связками приложений.
type ServiceBindingsPoller struct{}

func (p *ServiceBindingsPoller) PollErrorMessage(*process.Context) string {
	return "Error while polling service binding operations"
}

func (p *ServiceBindingsPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	return pollBindingOperations(ctx, pc, lookupBindingOperation, "service binding")
}

func lookupBindingOperation(ctx context.Context, client cf.Client, appName, serviceName string) (*domain.BindingOperation, bool, error) {
	binding, err := client.GetServiceBinding(ctx, appName, serviceName)
	if err != nil {
		return nil, false, err
	}
	if binding == nil {
		return nil, false, nil
	}
	return binding.LastOperation, true, nil
}

// ServiceKeysPoller опрашивает операции над сервис-ключами.
type ServiceKeysPoller struct{}

func (p *ServiceKeysPoller) PollErrorMessage(*process.Context) string {
	return "Error while polling service key operations"
}

func (p *ServiceKeysPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	return pollBindingOperations(ctx, pc, lookupKeyOperation, "service key")
}

func lookupKeyOperation(ctx context.Context, client cf.Client, serviceName, keyName string) (*domain.BindingOperation, bool, error) {
	key, err := client.GetServiceKey(ctx, serviceName, keyName)
	if err != nil {
		return nil, false, err
	}
	if key == nil {
		return nil, false, nil
	}
	return key.LastOperation, true, nil
}
