package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/opconsole/internal/application"
)

func TestDecrypterProvider_GetReturnsInitialDecrypter(t *testing.T) {
	decrypter := newBlockingDecrypter()
	provider := application.NewDecrypterProvider(decrypter, "aes-gcm")

	assert.Same(t, decrypter, provider.Get())
	assert.Equal(t, "aes-gcm", provider.Name())
}

func TestDecrypterProvider_ReplaceSwapsDecrypter(t *testing.T) {
	original := newBlockingDecrypter()
	replacement := newBlockingDecrypter()

	provider := application.NewDecrypterProvider(original, "aes-gcm")
	provider.Replace(replacement, "keyservice")

	assert.Same(t, replacement, provider.Get())
	assert.Equal(t, "keyservice", provider.Name())
}

func TestDecrypterProvider_HasDecrypterReturnsFalseForNil(t *testing.T) {
	provider := application.NewDecrypterProvider(nil, "")

	require.False(t, provider.HasDecrypter())

	provider.Replace(newBlockingDecrypter(), "aes-gcm")

	require.True(t, provider.HasDecrypter())
}

func TestDecrypterProvider_ConcurrentGetReplaceSafety(t *testing.T) {
	first := newBlockingDecrypter()
	second := newBlockingDecrypter()
	provider := application.NewDecrypterProvider(first, "first")

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for range goroutines {
		go func() {
			defer wg.Done()
			assert.NotNil(t, provider.Get())
		}()
		go func() {
			defer wg.Done()
			provider.Replace(second, "second")
		}()
	}

	wg.Wait()

	assert.Same(t, second, provider.Get())
}
