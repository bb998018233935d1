package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.zip")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestUploadAppStep_UploadsArchive(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pool := NewUploadPool(2)
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})
	mustSet(t, pc, VarArchivePath, writeArchive(t, "module bits"))

	step := NewUploadAppStep(pool)
	phase, err := step.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	poller := &UploadPoller{pool: pool}
	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := poller.Execute(context.Background(), pc)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if state == AsyncFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("upload did not finish in time")
		}
	}

	pkgGUID, err := process.Get(context.Background(), pc, VarUploadedPackage)
	if err != nil {
		t.Fatalf("get uploaded package: %v", err)
	}
	pkg, err := fake.GetPackage(context.Background(), pkgGUID)
	if err != nil {
		t.Fatalf("get package: %v", err)
	}
	if pkg.State != "READY" {
		t.Errorf("expected READY package, got %s", pkg.State)
	}
}

func TestUploadPoller_AdoptsFinishedUploadAfterRestart(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	// Пакет уже загружен предыдущей жизнью движка.
	pkg, err := fake.CreatePackage(context.Background(), "web")
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	if _, err := fake.UploadPackage(context.Background(), pkg.GUID, strings.NewReader("bits")); err != nil {
		t.Fatalf("upload package: %v", err)
	}

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarArchivePath, writeArchive(t, "bits"))
	mustSet(t, pc, VarUploadID, "upload-from-previous-life")
	mustSet(t, pc, VarUploadPackage, pkg.GUID)

	// Свежий пул загрузку не знает.
	poller := &UploadPoller{pool: NewUploadPool(1)}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("READY package must be adopted without a re-upload, got %s", state)
	}

	got, err := process.Get(context.Background(), pc, VarUploadedPackage)
	if err != nil || got != pkg.GUID {
		t.Errorf("expected adopted package %s, got %s (%v)", pkg.GUID, got, err)
	}
}

func TestUploadPoller_RestartsLostUpload(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarArchivePath, writeArchive(t, "bits"))
	mustSet(t, pc, VarUploadID, "upload-from-previous-life")

	pool := NewUploadPool(1)
	poller := &UploadPoller{pool: pool}

	// Ни пул, ни платформа загрузку не знают — она начинается заново.
	state, err := poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncRunning {
		t.Fatalf("expected RUNNING after the restart, got %s", state)
	}

	newID, err := process.Get(context.Background(), pc, VarUploadID)
	if err != nil {
		t.Fatalf("get upload id: %v", err)
	}
	if newID == "upload-from-previous-life" {
		t.Fatal("a fresh upload id must be assigned")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := poller.Execute(context.Background(), pc)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if state == AsyncFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("restarted upload did not finish in time")
		}
	}
}

func TestUploadAppStep_MissingArchiveFailsOnPoll(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pool := NewUploadPool(1)
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarArchivePath, filepath.Join(t.TempDir(), "missing.zip"))

	step := NewUploadAppStep(pool)
	phase, err := step.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	// Ошибка открытия архива всплывает на опросе.
	poller := &UploadPoller{pool: pool}
	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := poller.Execute(context.Background(), pc)
		if err != nil {
			if state != AsyncError {
				t.Fatalf("expected ERROR state with the error, got %s", state)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("missing archive error never surfaced")
		}
	}
}
