package temprole

import (
	"role-keeper/model"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocksSerialisePerKey(t *testing.T) {
	locks := newKeyLocks()
	key := model.GrantKey{UserID: "u", RoleID: "r", GuildID: "g"}

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(key)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Zero(t, locks.size())
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	locks := newKeyLocks()
	a := model.GrantKey{UserID: "a", RoleID: "r", GuildID: "g"}
	b := model.GrantKey{UserID: "b", RoleID: "r", GuildID: "g"}

	unlockA := locks.lock(a)
	done := make(chan struct{})
	go func() {
		unlock := locks.lock(b)
		unlock()
		close(done)
	}()
	<-done

	assert.Equal(t, 1, locks.size())
	unlockA()
	assert.Zero(t, locks.size())
}
