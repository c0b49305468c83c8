package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// LamportClock представляет логические часы Лампорта для упорядочивания
// локальных правок реплики. Значение часов используется как Timestamp регистров
// документа, ReplicaID разрешает конфликты при равных значениях.
type LamportClock struct {
	replicaID string     // уникальный идентификатор реплики
	counter   int64      // монотонно возрастающий счетчик
	mu        sync.Mutex // мьютекс для потокобезопасности
}

// NewLamportClock создает часы со случайным идентификатором реплики (UUID).
func NewLamportClock() *LamportClock {
	return &LamportClock{
		replicaID: uuid.New().String(),
	}
}

// NewLamportClockWithReplicaID создает часы с заданным идентификатором реплики.
// Используется при восстановлении состояния после перезапуска.
func NewLamportClockWithReplicaID(replicaID string, counter int64) *LamportClock {
	return &LamportClock{
		replicaID: replicaID,
		counter:   counter,
	}
}

// Tick увеличивает счетчик и возвращает новое значение.
// Вызывается при каждой локальной правке.
func (lc *LamportClock) Tick() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Observe продвигает часы по удалённому значению:
// counter = max(local, remote) + 1
func (lc *LamportClock) Observe(remote int64) int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remote > lc.counter {
		lc.counter = remote
	}
	lc.counter++

	return lc.counter
}

// Timestamp возвращает текущее значение без изменения.
func (lc *LamportClock) Timestamp() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// ReplicaID возвращает идентификатор реплики.
func (lc *LamportClock) ReplicaID() string {
	return lc.replicaID
}
