package pool

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkCheckoutReturn(b *testing.B) {
	for _, capacity := range []int{1, 8, 128} {
		b.Run(fmt.Sprintf("capacity=%d", capacity), func(b *testing.B) {
			p := New[int](Options{Name: "bench", Capacity: capacity, Strict: true})
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					e, reserved, err := p.Checkout(ctx, time.Minute)
					if err != nil {
						b.Error(err)
						return
					}
					if reserved {
						e = p.Commit(1)
					}
					p.ReturnIdle(e)
				}
			})
		})
	}
}
