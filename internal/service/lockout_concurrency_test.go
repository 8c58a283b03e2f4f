package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/service"
)

// parallelLogins fires n logins at once and returns the error code of each.
func parallelLogins(e *env, n int, login, password string) []service.Code {
	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
		codes = make([]service.Code, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready
			_, err := e.svc.Login(context.Background(), service.LoginInput{Login: login, Password: password}, meta)
			if err != nil {
				codes[i] = service.AsError(err).Code
			}
		}(i)
	}
	close(ready)
	wg.Wait()
	return codes
}

func countCodes(codes []service.Code) map[service.Code]int {
	out := map[service.Code]int{}
	for _, c := range codes {
		out[c]++
	}
	return out
}

func countActions(actions []string, action model.AuditAction) int {
	n := 0
	for _, a := range actions {
		if a == string(action) {
			n++
		}
	}
	return n
}

func TestParallelFailuresAreAllCounted(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "alice", "alice@example.com", "Secret123")

	const n = 4
	codes := parallelLogins(e, n, "alice", "Wrong1234")
	assert.Equal(t, map[service.Code]int{service.CodeInvalidCredentials: n}, countCodes(codes))

	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, n, u.LoginAttempts)
	assert.Nil(t, u.LockedUntil)
	assert.Equal(t, n, countActions(e.auditActions(t), model.ActionUserLoginFailed))
}

func TestParallelFailuresLockExactlyOnce(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "alice", "alice@example.com", "Secret123")

	const n = 10
	codes := parallelLogins(e, n, "alice", "Wrong1234")
	// Failures past the threshold find the row locked and are not counted.
	assert.Equal(t, map[service.Code]int{
		service.CodeInvalidCredentials: 5,
		service.CodeAccountLocked:      n - 5,
	}, countCodes(codes))

	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, u.LoginAttempts)
	require.NotNil(t, u.LockedUntil)
	assert.True(t, e.clock.Now().Add(time.Hour).Equal(*u.LockedUntil))

	actions := e.auditActions(t)
	assert.Equal(t, 1, countActions(actions, model.ActionAccountLocked))
	assert.Equal(t, n, countActions(actions, model.ActionUserLoginFailed))
}
