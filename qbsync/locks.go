package qbsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/hostbooks/qbsync_backend/config"
)

// RecordLocker guards one (entityType, localId) against concurrent sync runs.
// Release is always safe to call once.
type RecordLocker interface {
	Acquire(ctx context.Context, entityType string, localId int) (release func(), err error)
}

// ErrRecordBusy means another run holds the record lock right now.
var ErrRecordBusy = errors.New("record is locked by another sync run")

// redisRecordLocker backs RecordLocker with redislock. The TTL covers one
// record sync including dependency resolution; locks auto-expire if a worker
// dies mid-record.
type redisRecordLocker struct {
	ttl time.Duration
}

func NewRedisRecordLocker() RecordLocker {
	return &redisRecordLocker{ttl: 2 * time.Minute}
}

func (l *redisRecordLocker) Acquire(ctx context.Context, entityType string, localId int) (func(), error) {
	key := fmt.Sprintf("qbsync:record:%s:%d", entityType, localId)
	lock, err := config.GetRedisLock().Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrRecordBusy
		}
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

// noopRecordLocker is used by the CLI runner, which is strictly sequential.
type noopRecordLocker struct{}

func NewNoopRecordLocker() RecordLocker { return noopRecordLocker{} }

func (noopRecordLocker) Acquire(ctx context.Context, entityType string, localId int) (func(), error) {
	return func() {}, nil
}
