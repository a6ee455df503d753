package verify

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// SimulatedReasons are handed out in order, one per rejection.
var SimulatedReasons = []string{
	"Nominal tidak sesuai dengan total pembayaran",
	"Tanggal transaksi tidak valid",
	"Status transaksi tidak terdeteksi sebagai sukses",
	"Gambar buram atau tidak jelas",
	"Bukti transfer tidak ditemukan dalam gambar",
}

// Simulator stands in for a real gateway. With the same seed it produces the
// same accept/reject sequence.
type Simulator struct {
	RejectRate float64
	Delay      time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	next int
}

func NewSimulator(seed uint64, rejectRate float64, delay time.Duration) *Simulator {
	return &Simulator{
		RejectRate: rejectRate,
		Delay:      delay,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulator) Verify(ctx context.Context, _ Request) Verdict {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return reject(ReasonGatewayError)
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() >= s.RejectRate {
		return Verdict{Accepted: true}
	}
	reason := SimulatedReasons[s.next%len(SimulatedReasons)]
	s.next++
	return reject(reason)
}
