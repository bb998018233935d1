package domain

// IncrementalInstanceUpdate — снимок состояния пошагового (rolling)
// переключения инстансов между старым и новым приложением.
//
// Значение иммутабельно: каждый poll-тик порождает новую копию через
// With*-методы, никогда не мутирует на месте. Так diffing переменных
// движка остаётся консистентным между тиками.
type IncrementalInstanceUpdate struct {
	// OldApplication — имя старого (live) приложения.
	OldApplication string `json:"old_application"`

	// OldInstances — текущее число инстансов старого приложения.
	OldInstances int `json:"old_instances"`

	// NewApplication — имя нового (idle) приложения.
	NewApplication string `json:"new_application"`

	// NewInstances — текущее число инстансов нового приложения.
	NewInstances int `json:"new_instances"`

	// TargetInstances — целевое число инстансов нового приложения.
	TargetInstances int `json:"target_instances"`
}

// WithOldInstances возвращает копию с новым числом инстансов старого приложения.
func (u IncrementalInstanceUpdate) WithOldInstances(n int) IncrementalInstanceUpdate {
	u.OldInstances = n
	return u
}

// WithNewInstances возвращает копию с новым числом инстансов нового приложения.
func (u IncrementalInstanceUpdate) WithNewInstances(n int) IncrementalInstanceUpdate {
	u.NewInstances = n
	return u
}

// Done возвращает true, когда новое приложение достигло целевого числа инстансов.
func (u IncrementalInstanceUpdate) Done() bool {
	return u.NewInstances >= u.TargetInstances
}

// OldStopped возвращает true, когда старое приложение полностью остановлено.
func (u IncrementalInstanceUpdate) OldStopped() bool {
	return u.OldInstances <= 0
}
