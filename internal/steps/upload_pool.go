package steps

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Convoy/internal/cf"
)

// UploadPool — ограниченный пул фоновых загрузок пакетов.
//
// Стриминг байтов архива занимает минуты и не должен блокировать тик
// движка: шаг стартует загрузку здесь, а poller ждёт результат короткое
// ограниченное время и отдаёт управление, если загрузка ещё идёт.
//
// Состояние пула живёт в памяти процесса. После рестарта движка
// poller не найдёт свою загрузку и перезапустит её с нуля.
type UploadPool struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	uploads map[string]*upload
}

type upload struct {
	done   chan struct{}
	status cf.UploadStatus
}

// NewUploadPool создаёт пул с ограничением на число параллельных загрузок.
func NewUploadPool(maxConcurrent int64) *UploadPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &UploadPool{
		sem:     semaphore.NewWeighted(maxConcurrent),
		uploads: make(map[string]*upload),
	}
}

// Begin запускает фоновую загрузку под ключом id. Повторный Begin
// с тем же id игнорируется, пока предыдущая загрузка не забыта.
func (p *UploadPool) Begin(id string, open func() (io.ReadCloser, error), send func(ctx context.Context, content io.Reader) (*cf.Package, error)) {
	p.mu.Lock()
	if _, exists := p.uploads[id]; exists {
		p.mu.Unlock()
		return
	}
	u := &upload{done: make(chan struct{})}
	p.uploads[id] = u
	p.mu.Unlock()

	go func() {
		defer close(u.done)

		ctx := context.Background()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			u.status = cf.UploadStatus{Done: true, Err: err}
			return
		}
		defer p.sem.Release(1)

		content, err := open()
		if err != nil {
			u.status = cf.UploadStatus{Done: true, Err: err}
			return
		}
		defer content.Close()

		counted := &countingReader{r: content}
		pkg, err := send(ctx, counted)
		status := cf.UploadStatus{Done: true, BytesSent: counted.n, Err: err}
		if pkg != nil {
			status.PackageGUID = pkg.GUID
		}
		u.status = status
	}()
}

// Wait ждёт завершения загрузки не дольше d. Второй результат false,
// если пул не знает такой загрузки (рестарт движка).
func (p *UploadPool) Wait(id string, d time.Duration) (cf.UploadStatus, bool) {
	p.mu.Lock()
	u, ok := p.uploads[id]
	p.mu.Unlock()
	if !ok {
		return cf.UploadStatus{}, false
	}

	select {
	case <-u.done:
		return u.status, true
	case <-time.After(d):
		return cf.UploadStatus{}, true
	}
}

// Forget удаляет завершённую загрузку из пула.
func (p *UploadPool) Forget(id string) {
	p.mu.Lock()
	delete(p.uploads, id)
	p.mu.Unlock()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
