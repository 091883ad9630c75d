package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoCtx_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	GoCtx(context.Background(), func(ctx context.Context) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGo_PanicDoesNotAffectOthers(t *testing.T) {
	ran := make(chan int, 2)
	Go(func() { ran <- 1; panic("first") })
	Go(func() { ran <- 2 })

	got := 0
	for i := 0; i < 2; i++ {
		select {
		case v := <-ran:
			got += v
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	assert.Equal(t, 3, got)
}
