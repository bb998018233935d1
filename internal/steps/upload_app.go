package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/process"
)

// uploadWait — сколько poller ждёт фоновую загрузку перед тем,
// как отдать управление движку.
const uploadWait = 2 * time.Second

// UploadAppStep загружает архив модуля в пакет приложения.
//
// Стриминг байтов уходит в фоновый пул: шаг создаёт пакет и стартует
// загрузку, poller ждёт её ограниченное время на каждом тике. После
// рестарта движка загрузка перезапускается в свежий пакет.
type UploadAppStep struct {
	pool *UploadPool
}

// NewUploadAppStep создаёт шаг загрузки с общим пулом загрузок.
func NewUploadAppStep(pool *UploadPool) *UploadAppStep {
	return &UploadAppStep{pool: pool}
}

func (s *UploadAppStep) Name() string { return "uploadApp" }

func (s *UploadAppStep) ErrorMessage(*process.Context) string {
	return "Error uploading application content"
}

func (s *UploadAppStep) Timeout(ctx context.Context, pc *process.Context) (time.Duration, error) {
	return ResolveTimeout(ctx, pc, TimeoutUpload)
}

func (s *UploadAppStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	archivePath, err := process.Get(ctx, pc, VarArchivePath)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	uploadID, err := beginUpload(ctx, pc, s.pool, client, app.Name, archivePath)
	if err != nil {
		return PhaseRetry, err
	}

	pc.Logger().Info("upload started", "app", app.Name, "archive", archivePath, "uploadId", uploadID)
	return PhasePoll, nil
}

func (s *UploadAppStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&UploadPoller{pool: s.pool}}
}

// beginUpload создаёт пакет, стартует фоновую загрузку архива и
// записывает её координаты в переменные процесса.
func beginUpload(ctx context.Context, pc *process.Context, pool *UploadPool, client cf.Client, appName, archivePath string) (string, error) {
	pkg, err := client.CreatePackage(ctx, appName)
	if err != nil {
		return "", fmt.Errorf("create package for %q: %w", appName, err)
	}

	uploadID := uuid.NewString()
	pool.Begin(uploadID,
		func() (io.ReadCloser, error) { return os.Open(archivePath) },
		func(ctx context.Context, content io.Reader) (*cf.Package, error) {
			return client.UploadPackage(ctx, pkg.GUID, content)
		},
	)

	if err := process.Set(ctx, pc, VarUploadPackage, pkg.GUID); err != nil {
		return "", err
	}
	if err := process.Set(ctx, pc, VarUploadID, uploadID); err != nil {
		return "", err
	}
	return uploadID, nil
}

// UploadPoller ждёт завершения фоновой загрузки короткое ограниченное
// время; если пул не знает загрузку (рестарт движка), сверяется с
// состоянием пакета и при необходимости перезапускает загрузку.
type UploadPoller struct {
	pool *UploadPool
}

func (p *UploadPoller) PollErrorMessage(pc *process.Context) string {
	return "Error while uploading application content"
}

func (p *UploadPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	uploadID, err := process.Get(ctx, pc, VarUploadID)
	if err != nil {
		return AsyncError, err
	}

	status, known := p.pool.Wait(uploadID, uploadWait)
	if !known {
		return p.resume(ctx, pc)
	}
	if !status.Done {
		pc.Logger().Debug("upload in progress", "uploadId", uploadID)
		return AsyncRunning, nil
	}

	p.pool.Forget(uploadID)
	if status.Err != nil {
		return AsyncError, fmt.Errorf("upload package: %w", status.Err)
	}

	if err := process.Set(ctx, pc, VarUploadedPackage, status.PackageGUID); err != nil {
		return AsyncError, err
	}
	pc.Logger().Info("upload finished", "package", status.PackageGUID, "bytes", status.BytesSent)
	return AsyncFinished, nil
}

// resume восстанавливает загрузку после рестарта движка.
func (p *UploadPoller) resume(ctx context.Context, pc *process.Context) (AsyncState, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return AsyncError, err
	}
	archivePath, err := process.Get(ctx, pc, VarArchivePath)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	pkgGUID, err := process.Get(ctx, pc, VarUploadPackage)
	if err == nil {
		pkg, err := client.GetPackage(ctx, pkgGUID)
		if err == nil && pkg.State == "READY" {
			if err := process.Set(ctx, pc, VarUploadedPackage, pkg.GUID); err != nil {
				return AsyncError, err
			}
			pc.Logger().Info("upload already finished", "package", pkg.GUID)
			return AsyncFinished, nil
		}
	}

	pc.Logger().Warn("upload lost after restart, retrying", "app", app.Name)
	if _, err := beginUpload(ctx, pc, p.pool, client, app.Name, archivePath); err != nil {
		return AsyncError, err
	}
	return AsyncRunning, nil
}
