package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// BrokerJobsPoller — generic async-job poller для регистрации брокеров.
//
// Опрашивает карту brokerName → jobGUID. Терминальная ошибка job'а
// фатальна, если брокер не опционален; опциональный выбывает с warning,
// остальные jobs продолжают опрашиваться — частичный успех по многим
// независимо регистрируемым брокерам в одном шаге.
type BrokerJobsPoller struct{}

func (p *BrokerJobsPoller) PollErrorMessage(*process.Context) string {
	return "Error while polling service broker jobs"
}

func (p *BrokerJobsPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	jobs, err := process.GetOrDefault(ctx, pc, VarBrokerJobs)
	if err != nil {
		return AsyncError, err
	}
	if len(jobs) == 0 {
		return AsyncFinished, nil
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	registered, err := process.GetOrDefault(ctx, pc, VarBrokersToRegister)
	if err != nil {
		return AsyncError, err
	}
	optionalByName := brokersOptionality(registered)

	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	remaining := make(map[string]string)
	for _, name := range names {
		jobGUID := jobs[name]

		job, err := client.GetJob(ctx, jobGUID)
		if err != nil {
			if optionalByName[name] {
				pc.Logger().Warn("cannot poll job of optional broker, dropping it",
					"broker", name,
					"error", err,
				)
				continue
			}
			return AsyncError, fmt.Errorf("get job %q of broker %q: %w", jobGUID, name, err)
		}

		for _, warning := range job.Warnings {
			pc.Logger().Warn("job warning", "broker", name, "warning", warning)
		}

		switch job.State {
		case domain.JobComplete:
			pc.Logger().Debug("broker job complete", "broker", name)

		case domain.JobFailed:
			if optionalByName[name] {
				pc.Logger().Warn("job of optional broker failed, continuing",
					"broker", name,
					"errors", strings.Join(job.Errors, "; "),
				)
				continue
			}
			return AsyncError, fmt.Errorf("registration of broker %q failed: %s",
				name, strings.Join(job.Errors, "; "))

		default:
			// PROCESSING / POLLING — job ещё идёт.
			remaining[name] = jobGUID
		}
	}

	if err := process.Set(ctx, pc, VarBrokerJobs, remaining); err != nil {
		return AsyncError, err
	}

	if len(remaining) == 0 {
		return AsyncFinished, nil
	}
	return AsyncRunning, nil
}

func brokersOptionality(brokers []domain.ServiceBroker) map[string]bool {
	byName := make(map[string]bool, len(brokers))
	for i := range brokers {
		byName[brokers[i].Name] = brokers[i].Optional
	}
	return byName
}
